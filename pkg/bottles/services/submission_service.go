package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	problem "github.com/onebottle/onebottle-api/pkg/bottles/helpers/problem"
	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"github.com/onebottle/onebottle-api/pkg/bottles/repositories"
	"github.com/onebottle/onebottle-api/pkg/bottles/services/moderation"
	"github.com/onebottle/onebottle-api/pkg/bottles/storage"
	"github.com/teris-io/shortid"
)

const compensationTimeout = 15 * time.Second

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Moderator classifies a publicly readable media locator.
type Moderator interface {
	Classify(ctx context.Context, locator string, kind models.MediaKind) moderation.Verdict
}

type SubmissionConfig struct {
	Deadline time.Time
	MaxBytes int64
	Now      func() time.Time
}

// SubmissionInput is one upload attempt as received from the client.
type SubmissionInput struct {
	Owner       string
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// SubmissionService runs the one-shot upload pipeline:
// deadline, validation, uniqueness, upload, moderation, commit.
type SubmissionService struct {
	bottles   repositories.BottleRepository
	blobs     storage.BlobStore
	moderator Moderator
	cfg       SubmissionConfig
}

func NewSubmissionService(bottles repositories.BottleRepository, blobs storage.BlobStore, moderator Moderator, cfg SubmissionConfig) *SubmissionService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SubmissionService{bottles: bottles, blobs: blobs, moderator: moderator, cfg: cfg}
}

// Open reports ErrDeadlinePassed once the submission window has closed.
func (s *SubmissionService) Open() error {
	if !s.cfg.Now().Before(s.cfg.Deadline) {
		return ErrDeadlinePassed
	}
	return nil
}

// Submit returns nil only once the bottle row is durably committed.
// Any blob written on the way is removed again on failure.
func (s *SubmissionService) Submit(ctx context.Context, in SubmissionInput) error {
	now := s.cfg.Now()
	if !now.Before(s.cfg.Deadline) {
		return ErrDeadlinePassed
	}

	owner, ok := models.NormalizeIdentity(in.Owner)
	if !ok {
		return problem.NewBadRequest("Missing required parameters",
			problem.InvalidParam{Name: "owner", Reason: "is required"})
	}
	if len(in.Data) == 0 {
		return problem.NewBadRequest("Missing required parameters",
			problem.InvalidParam{Name: "file", Reason: "is required"})
	}
	kind, ok := models.MediaKindFromContentType(in.ContentType)
	if !ok {
		return problem.NewBadRequest("Only images and videos are allowed",
			problem.InvalidParam{Name: "file", Reason: "must be an image or a video"})
	}
	size := max(in.Size, int64(len(in.Data)))
	if s.cfg.MaxBytes > 0 && size > s.cfg.MaxBytes {
		return problem.NewBadRequest(fmt.Sprintf("File size cannot exceed %dMB", s.cfg.MaxBytes>>20),
			problem.InvalidParam{Name: "file", Reason: "too large"})
	}

	digest := ownerDigest(owner)
	existing, err := s.bottles.FindByOwner(ctx, owner)
	if err != nil {
		log.Printf("[submit] owner=%s lookup failed: %v", digest, err)
		return problem.NewInternalServerError("Server error")
	}
	if existing != nil {
		return ErrAlreadySubmitted
	}

	key := blobKey(digest, in.Filename, in.ContentType, now)
	if err := s.blobs.Put(ctx, key, in.ContentType, in.Data); err != nil {
		log.Printf("[submit] owner=%s upload failed: %v", digest, err)
		return problem.NewInternalServerError("File upload failed")
	}
	locator := s.blobs.PublicURL(key)

	verdict := s.moderator.Classify(ctx, locator, kind)
	if !verdict.Safe {
		s.discard(ctx, key)
		log.Printf("[submit] owner=%s content rejected: %s", digest, verdict.Reason)
		return ErrRejectedByModeration
	}

	bottle := &models.Bottle{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		MediaKey:   key,
		MediaURL:   locator,
		MediaKind:  kind,
		Visibility: models.VisibilityApproved,
		CreatedAt:  now.UTC(),
	}
	if err := s.bottles.Create(ctx, bottle); err != nil {
		s.discard(ctx, key)
		if errors.Is(err, repositories.ErrOwnerTaken) {
			log.Printf("[submit] owner=%s lost commit race", digest)
			return ErrAlreadySubmitted
		}
		log.Printf("[submit] owner=%s commit failed: %v", digest, err)
		return problem.NewInternalServerError("Failed to save")
	}

	log.Printf("[submit] owner=%s committed bottle=%s kind=%s", digest, bottle.ID, kind)
	return nil
}

// CheckOwner is advisory: any failure reads as "no bottle".
func (s *SubmissionService) CheckOwner(ctx context.Context, owner string) models.CheckResponse {
	id, ok := models.NormalizeIdentity(owner)
	if !ok {
		return models.CheckResponse{}
	}
	bottle, err := s.bottles.FindByOwner(ctx, id)
	if err != nil {
		log.Printf("[check] owner=%s lookup failed: %v", ownerDigest(id), err)
		return models.CheckResponse{}
	}
	if bottle == nil {
		return models.CheckResponse{}
	}
	status := string(bottle.Visibility)
	return models.CheckResponse{HasBottle: true, Status: &status}
}

// discard removes an uploaded blob even when the request context is gone.
func (s *SubmissionService) discard(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		log.Printf("[submit] could not delete blob %s: %v", key, err)
	}
}

// ownerDigest keeps raw identity tokens out of blob paths and logs.
func ownerDigest(owner string) string {
	sum := sha256.Sum256([]byte(owner))
	return hex.EncodeToString(sum[:])[:16]
}

func blobKey(digest, filename, contentType string, now time.Time) string {
	suffix, err := shortid.Generate()
	if err != nil {
		suffix = uuid.NewString()[:8]
	}
	return fmt.Sprintf("%s/%d-%s%s", digest, now.UnixMilli(), suffix, extension(filename, contentType))
}

func extension(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if extPattern.MatchString(ext) {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
