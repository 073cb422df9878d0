package services

import "errors"

// Policy outcomes. The messages are safe to show to clients.
var (
	ErrDeadlinePassed       = errors.New("Uploads have ended. The time capsule is now sealed.")
	ErrAlreadySubmitted     = errors.New("You have already left your bottle. One chance only.")
	ErrRejectedByModeration = errors.New("Your content did not pass moderation. Please ensure it follows community guidelines.")
	ErrQuotaExceeded        = errors.New("Daily view limit reached. Come back tomorrow.")
)
