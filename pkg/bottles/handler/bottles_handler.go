package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	problem "github.com/onebottle/onebottle-api/pkg/bottles/helpers/problem"
	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"github.com/onebottle/onebottle-api/pkg/bottles/services"
	"github.com/onebottle/onebottle-api/pkg/bottles/storage"
)

// multipartOverhead is the slack allowed on top of the file ceiling for
// boundaries and the owner field.
const multipartOverhead = 1 << 20

const mediaCSP = "default-src 'none'; sandbox"

// BottlesController binds the public routes to the submission and discovery services
type BottlesController struct {
	Submissions *services.SubmissionService
	Discovery   *services.DiscoveryService
	Blobs       storage.BlobStore
	MaxBytes    int64
}

// NewBottlesController creates a new controller
func NewBottlesController(sub *services.SubmissionService, disc *services.DiscoveryService, blobs storage.BlobStore, maxBytes int64) *BottlesController {
	return &BottlesController{Submissions: sub, Discovery: disc, Blobs: blobs, MaxBytes: maxBytes}
}

// Submit handles POST /submissions
func (c *BottlesController) Submit(ctx *gin.Context) (*models.SubmissionResponse, error) {
	if err := c.Submissions.Open(); err != nil {
		return nil, mapError(err)
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.MaxBytes+multipartOverhead)
	in := services.SubmissionInput{Owner: ctx.PostForm("owner")}

	fh, err := ctx.FormFile("file")
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return nil, problem.NewBadRequest(fmt.Sprintf("File size cannot exceed %dMB", c.MaxBytes>>20),
			problem.InvalidParam{Name: "file", Reason: "too large"})
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			return nil, problem.NewBadRequest("Could not read upload",
				problem.InvalidParam{Name: "file", Reason: err.Error()})
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, problem.NewBadRequest("Could not read upload",
				problem.InvalidParam{Name: "file", Reason: err.Error()})
		}
		in.Filename = fh.Filename
		in.ContentType = fh.Header.Get("Content-Type")
		in.Size = fh.Size
		in.Data = data
	}

	if err := c.Submissions.Submit(ctx.Request.Context(), in); err != nil {
		return nil, mapError(err)
	}
	return &models.SubmissionResponse{Success: true}, nil
}

// Check handles POST /submissions/check. It never fails: an unreadable body
// reads as "no bottle".
func (c *BottlesController) Check(ctx *gin.Context) (*models.CheckResponse, error) {
	var body models.CheckRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return &models.CheckResponse{}, nil
	}
	res := c.Submissions.CheckOwner(ctx.Request.Context(), body.Owner)
	return &res, nil
}

// Discover handles POST /discovery
func (c *BottlesController) Discover(ctx *gin.Context, body *models.DiscoveryRequest) (*models.DiscoveryResponse, error) {
	res, err := c.Discovery.Next(ctx.Request.Context(), body.Viewer)
	if err != nil {
		return nil, mapError(err)
	}
	return &models.DiscoveryResponse{Artifact: res.Bottle, Remaining: res.Remaining}, nil
}

// RetrieveArtifact handles GET /artifacts/:id
func (c *BottlesController) RetrieveArtifact(ctx *gin.Context, params *models.BottleParams) (*models.BottleDetail, error) {
	bottle, err := c.Discovery.RetrieveBottle(ctx.Request.Context(), params.Id)
	if err != nil {
		log.Printf("[artifacts] lookup %s failed: %v", params.Id, err)
		return nil, problem.NewInternalServerError("Server error")
	}
	if bottle == nil {
		return nil, problem.NewNotFound("Artifact not found")
	}
	return bottle, nil
}

// Media handles GET /media/*key and writes the stored bytes as-is.
func (c *BottlesController) Media(ctx *gin.Context) {
	key := strings.TrimPrefix(ctx.Param("key"), "/")
	blob, err := c.Blobs.Get(ctx.Request.Context(), key)
	if errors.Is(err, storage.ErrBlobNotFound) {
		writeProblem(ctx, problem.NewNotFound("Media not found"))
		return
	}
	if err != nil {
		log.Printf("[media] get %s failed: %v", key, err)
		writeProblem(ctx, problem.NewInternalServerError("Server error"))
		return
	}
	// Uploads carry a client-declared content type; never let them run as
	// active content on this origin.
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Header("Content-Security-Policy", mediaCSP)
	ctx.Header("Content-Disposition", "inline")
	ctx.Header("Cache-Control", "public, max-age=31536000, immutable")
	ctx.Data(http.StatusOK, blob.ContentType, blob.Data)
}

// mapError turns policy outcomes into problem documents. Anything that is
// already a problem passes through.
func mapError(err error) error {
	switch {
	case errors.Is(err, services.ErrDeadlinePassed),
		errors.Is(err, services.ErrAlreadySubmitted),
		errors.Is(err, services.ErrRejectedByModeration):
		return problem.NewForbidden(err.Error())
	case errors.Is(err, services.ErrQuotaExceeded):
		return problem.NewTooManyRequests(err.Error())
	}
	return err
}

func writeProblem(ctx *gin.Context, apiErr problem.APIError) {
	ctx.Header("Content-Type", "application/problem+json")
	ctx.AbortWithStatusJSON(apiErr.Status, apiErr)
}
