package problem

import (
	"net/http"
	"strconv"
)

type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// APIError implements error + Problem Details (RFC 7807).
// Message duplicates the detail under "error" for the browser client.
type APIError struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Status        int            `json:"status"`
	Message       string         `json:"error"`
	InvalidParams []InvalidParam `json:"invalidParams,omitempty"`
	Remaining     *int           `json:"remaining,omitempty"`
}

func (e APIError) Error() string { return e.Message }

func newAPIError(status int, detail string, params []InvalidParam) APIError {
	return APIError{
		Type:          "https://developer.mozilla.org/en-US/docs/Web/HTTP/Reference/Status/" + strconv.Itoa(status),
		Title:         http.StatusText(status),
		Status:        status,
		Message:       detail,
		InvalidParams: params,
	}
}

func NewBadRequest(detail string, params ...InvalidParam) APIError {
	return newAPIError(http.StatusBadRequest, detail, params)
}

func NewUnauthorized(detail string) APIError {
	return newAPIError(http.StatusUnauthorized, detail, nil)
}

func NewForbidden(detail string) APIError {
	return newAPIError(http.StatusForbidden, detail, nil)
}

func NewNotFound(detail string) APIError {
	return newAPIError(http.StatusNotFound, detail, nil)
}

// NewTooManyRequests always reports zero remaining views.
func NewTooManyRequests(detail string) APIError {
	e := newAPIError(http.StatusTooManyRequests, detail, nil)
	zero := 0
	e.Remaining = &zero
	return e
}

func NewInternalServerError(detail string) APIError {
	return newAPIError(http.StatusInternalServerError, detail, nil)
}

func NewServiceUnavailable(detail string) APIError {
	return newAPIError(http.StatusServiceUnavailable, detail, nil)
}
