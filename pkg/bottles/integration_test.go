package bottles_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/loopfz/gadgeto/tonic"
	bottles "github.com/onebottle/onebottle-api/pkg/bottles"
	"github.com/onebottle/onebottle-api/pkg/bottles/handler"
	problem "github.com/onebottle/onebottle-api/pkg/bottles/helpers/problem"
	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"github.com/onebottle/onebottle-api/pkg/bottles/repositories"
	"github.com/onebottle/onebottle-api/pkg/bottles/services"
	"github.com/onebottle/onebottle-api/pkg/bottles/services/moderation"
	"github.com/onebottle/onebottle-api/pkg/bottles/storage"
	"github.com/onebottle/onebottle-api/pkg/bottles/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const adminSecret = "integration-secret"

var (
	errorHookOnce sync.Once
	clock         = time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	today         = clock.Format(models.DayLayout)
)

type integrationEnv struct {
	server *httptest.Server
	db     *gorm.DB
	client *http.Client
}

func newIntegrationEnv(t *testing.T, gateway *moderation.Gateway) *integrationEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)
	errorHookOnce.Do(func() { tonic.SetErrorHook(bottles.ErrorHook) })

	db := testutil.NewTestDB(t)
	bottleRepo := repositories.NewBottleRepository(db)
	ledger := repositories.NewExposureRepository(db)
	blobs := storage.NewDatabaseBlobStore(db, "https://bottles.test")
	now := func() time.Time { return clock }

	if gateway == nil {
		gateway = moderation.NewGateway(moderation.Config{})
	}
	sub := services.NewSubmissionService(bottleRepo, blobs, gateway, services.SubmissionConfig{
		Deadline: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		MaxBytes: 1 << 20,
		Now:      now,
	})
	disc := services.NewDiscoveryService(bottleRepo, ledger, services.DiscoveryConfig{Now: now})
	maint := services.NewMaintenanceService(bottleRepo, ledger, blobs, time.Hour)

	router := bottles.NewRouter(bottles.RouterConfig{Version: "test-version", AdminSecret: adminSecret},
		handler.NewBottlesController(sub, disc, blobs, 1<<20),
		handler.NewAdminController(maint),
	)
	server := testutil.NewTestServer(t, router)

	return &integrationEnv{
		server: server,
		db:     db,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (e *integrationEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *integrationEnv) doJSONRequest(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *integrationEnv) submit(t *testing.T, owner, filename, contentType string, data []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if owner != "" {
		require.NoError(t, mw.WriteField("owner", owner))
	}
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/submissions", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(t, req)
}

func (e *integrationEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	err = json.Unmarshal(data, &out)
	require.NoErrorf(t, err, "body=%s", string(data))
	return out
}

func adminToken(t *testing.T, scope string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "ops",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(adminSecret))
	require.NoError(t, err)
	return tok
}

func TestSubmitThenDiscover(t *testing.T) {
	env := newIntegrationEnv(t, nil)
	png := []byte("\x89PNG\r\n\x1a\nfake")

	t.Run("first submission succeeds", func(t *testing.T) {
		resp := env.submit(t, "alice", "sunset.png", "image/png", png)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "test-version", resp.Header.Get("API-Version"))
		body := decodeBody[models.SubmissionResponse](t, resp)
		require.True(t, body.Success)
	})

	t.Run("second submission is refused", func(t *testing.T) {
		resp := env.submit(t, "alice", "other.png", "image/png", png)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "application/problem+json")
		prob := decodeBody[problem.APIError](t, resp)
		require.Equal(t, services.ErrAlreadySubmitted.Error(), prob.Message)
		require.EqualValues(t, 1, env.count(t, &models.Bottle{}))
		require.EqualValues(t, 1, env.count(t, &models.Blob{}))
	})

	t.Run("check reports the bottle", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPost, "/submissions/check", map[string]string{"owner": "alice"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[models.CheckResponse](t, resp)
		require.True(t, body.HasBottle)
		require.NotNil(t, body.Status)
		require.Equal(t, "approved", *body.Status)
	})

	t.Run("check never fails", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/submissions/check", bytes.NewBufferString("{nope"))
		require.NoError(t, err)
		resp := env.do(t, req)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[models.CheckResponse](t, resp)
		require.False(t, body.HasBottle)
		require.Nil(t, body.Status)
	})

	t.Run("owner never sees own bottle", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPost, "/discovery", map[string]string{"viewer": "alice"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[models.DiscoveryResponse](t, resp)
		require.Nil(t, body.Artifact)
		require.Equal(t, 10, body.Remaining)
		require.EqualValues(t, 0, env.count(t, &models.Exposure{}))
	})

	var artifact *models.BottleView
	t.Run("someone else discovers it once", func(t *testing.T) {
		resp := env.doJSONRequest(t, http.MethodPost, "/discovery", map[string]string{"viewer": "bob"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[models.DiscoveryResponse](t, resp)
		require.NotNil(t, body.Artifact)
		require.Equal(t, 9, body.Remaining)
		require.Equal(t, models.MediaKindImage, body.Artifact.MediaKind)
		artifact = body.Artifact

		resp = env.doJSONRequest(t, http.MethodPost, "/discovery", map[string]string{"viewer": "bob"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body = decodeBody[models.DiscoveryResponse](t, resp)
		require.Nil(t, body.Artifact)
		require.Equal(t, 9, body.Remaining)
	})

	t.Run("artifact and media are retrievable", func(t *testing.T) {
		require.NotNil(t, artifact)
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/artifacts/"+artifact.Id, nil)
		require.NoError(t, err)
		resp := env.do(t, req)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		detail := decodeBody[models.BottleDetail](t, resp)
		require.Equal(t, artifact.Id, detail.Id)
		require.Equal(t, artifact.MediaUrl, detail.MediaUrl)

		var blob models.Blob
		require.NoError(t, env.db.First(&blob).Error)
		req, err = http.NewRequest(http.MethodGet, env.server.URL+"/media/"+blob.Key, nil)
		require.NoError(t, err)
		resp = env.do(t, req)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		require.Contains(t, resp.Header.Get("Content-Security-Policy"), "sandbox")
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, png, data)
	})

	t.Run("unknown artifact is 404", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/artifacts/nope", nil)
		require.NoError(t, err)
		resp := env.do(t, req)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		prob := decodeBody[problem.APIError](t, resp)
		require.Equal(t, "Not Found", prob.Title)
	})
}

func TestSubmitValidation(t *testing.T) {
	env := newIntegrationEnv(t, nil)

	tests := []struct {
		name        string
		owner       string
		contentType string
		data        []byte
		param       string
	}{
		{"missing owner", "", "image/png", []byte("x"), "owner"},
		{"missing file", "carol", "", nil, "file"},
		{"not media", "carol", "application/pdf", []byte("%PDF"), "file"},
		{"too large", "carol", "image/png", bytes.Repeat([]byte("x"), 1<<20+1), "file"},
		{"body over the request cap", "carol", "image/png", bytes.Repeat([]byte("x"), 3<<20), "file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.submit(t, tt.owner, "upload.bin", tt.contentType, tt.data)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			prob := decodeBody[problem.APIError](t, resp)
			require.NotEmpty(t, prob.InvalidParams)
			require.Equal(t, tt.param, prob.InvalidParams[0].Name)
		})
	}
	require.EqualValues(t, 0, env.count(t, &models.Bottle{}))
	require.EqualValues(t, 0, env.count(t, &models.Blob{}))
}

func TestDiscoveryQuotaExhausted(t *testing.T) {
	env := newIntegrationEnv(t, nil)
	for i := 0; i < 10; i++ {
		require.NoError(t, env.db.Create(&models.Exposure{
			ID:       fmt.Sprintf("e%d", i),
			ViewerID: "dave",
			BottleID: fmt.Sprintf("b%d", i),
			ShownOn:  today,
		}).Error)
	}

	resp := env.doJSONRequest(t, http.MethodPost, "/discovery", map[string]string{"viewer": "dave"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	prob := decodeBody[problem.APIError](t, resp)
	require.NotNil(t, prob.Remaining)
	require.Equal(t, 0, *prob.Remaining)
	require.Equal(t, services.ErrQuotaExceeded.Error(), prob.Message)
}

func TestDiscoveryMissingViewer(t *testing.T) {
	env := newIntegrationEnv(t, nil)

	resp := env.doJSONRequest(t, http.MethodPost, "/discovery", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	prob := decodeBody[problem.APIError](t, resp)
	require.Equal(t, 400, prob.Status)
	require.NotEmpty(t, prob.InvalidParams)
}

func TestSubmitRejectedByModeration(t *testing.T) {
	oracle := testutil.NewTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"success","gore":{"prob":0.6}}`)
	}))
	testutil.UseServerClient(t, oracle)
	gateway := moderation.NewGateway(moderation.Config{
		APIUser:   "user",
		APISecret: "secret",
		Endpoint:  oracle.URL,
		Timeout:   2 * time.Second,
	})
	env := newIntegrationEnv(t, gateway)

	resp := env.submit(t, "erin", "scene.jpg", "image/jpeg", []byte("jpeg"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	prob := decodeBody[problem.APIError](t, resp)
	require.Equal(t, services.ErrRejectedByModeration.Error(), prob.Message)
	require.EqualValues(t, 0, env.count(t, &models.Bottle{}))
	require.EqualValues(t, 0, env.count(t, &models.Blob{}))
}

func TestAdminRoutes(t *testing.T) {
	env := newIntegrationEnv(t, nil)
	require.NoError(t, env.db.Create(&models.Blob{
		Key:         "orphan",
		ContentType: "image/png",
		Data:        []byte("x"),
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	}).Error)

	get := func(method, path, token string) *http.Response {
		req, err := http.NewRequest(method, env.server.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return env.do(t, req)
	}

	resp := get(http.MethodGet, "/admin/stats", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = get(http.MethodGet, "/admin/stats", adminToken(t, "bottles:read"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	token := adminToken(t, "bottles:admin")
	resp = get(http.MethodGet, "/admin/stats", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeBody[models.Stats](t, resp)
	require.EqualValues(t, 1, stats.Blobs)

	resp = get(http.MethodPost, "/admin/sweep", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	swept := decodeBody[models.SweepResponse](t, resp)
	require.Equal(t, 1, swept.Deleted)
	require.EqualValues(t, 0, env.count(t, &models.Blob{}))
}

func TestOpenAPIDocumentIsValid(t *testing.T) {
	env := newIntegrationEnv(t, nil)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/openapi.json", nil)
	require.NoError(t, err)
	resp := env.do(t, req)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	doc, err := openapi3.NewLoader().LoadFromData(data)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	require.NotNil(t, doc.Paths.Find("/discovery"))
	require.NotNil(t, doc.Paths.Find("/artifacts/{id}"))
	require.NotNil(t, doc.Paths.Find("/submissions"))
}
