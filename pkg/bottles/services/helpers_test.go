package services_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	problem "github.com/onebottle/onebottle-api/pkg/bottles/helpers/problem"
	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"github.com/onebottle/onebottle-api/pkg/bottles/repositories"
	"github.com/onebottle/onebottle-api/pkg/bottles/services/moderation"
	"github.com/onebottle/onebottle-api/pkg/bottles/storage"
	"github.com/onebottle/onebottle-api/pkg/bottles/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	beforeDeadline = time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	deadline       = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
)

type env struct {
	db      *gorm.DB
	bottles repositories.BottleRepository
	ledger  repositories.ExposureRepository
	blobs   *storage.DatabaseBlobStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDB(t)
	return &env{
		db:      db,
		bottles: repositories.NewBottleRepository(db),
		ledger:  repositories.NewExposureRepository(db),
		blobs:   storage.NewDatabaseBlobStore(db, "https://bottles.test"),
	}
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func (e *env) seedBottle(t *testing.T, id, owner string) {
	t.Helper()
	require.NoError(t, e.bottles.Create(context.Background(), &models.Bottle{
		ID:         id,
		OwnerID:    owner,
		MediaKey:   "k/" + id,
		MediaURL:   "https://bottles.test/media/k/" + id,
		MediaKind:  models.MediaKindImage,
		Visibility: models.VisibilityApproved,
		CreatedAt:  beforeDeadline,
	}))
}

// fixedModerator returns the same verdict for every call.
type fixedModerator struct {
	verdict moderation.Verdict
	calls   int
}

func (m *fixedModerator) Classify(ctx context.Context, locator string, kind models.MediaKind) moderation.Verdict {
	m.calls++
	return m.verdict
}

// oracle starts a fake moderation oracle returning body for every call.
func oracle(t *testing.T, body string) *moderation.Gateway {
	t.Helper()
	srv := testutil.NewTestServer(t, testutil.JSONResponder(http.StatusOK, jsonRaw(body)))
	testutil.UseServerClient(t, srv)
	return moderation.NewGateway(moderation.Config{
		APIUser:   "user",
		APISecret: "secret",
		Endpoint:  srv.URL,
		Timeout:   2 * time.Second,
	})
}

type jsonRaw string

func (r jsonRaw) MarshalJSON() ([]byte, error) { return []byte(r), nil }

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr problem.APIError
	require.True(t, errors.As(err, &apiErr), "expected problem.APIError, got %v", err)
	require.Equal(t, status, apiErr.Status)
}
