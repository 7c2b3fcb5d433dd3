package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upcycle-api-server/internal/auth"
	"upcycle-api-server/internal/ledger"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/marketplace"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store/memstore"
)

type fakeUploader struct {
	key  string
	body string
}

func (u *fakeUploader) UploadFile(_ context.Context, file io.Reader, key, _ string) (string, error) {
	b, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	u.key, u.body = key, string(b)
	return "https://cdn.example.com/" + key, nil
}

type testServer struct {
	router   *gin.Engine
	tokens   *auth.Service
	store    *memstore.Store
	uploader *fakeUploader
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	s := memstore.New()
	require.NoError(t, s.PutOrganization(ctx, &models.Organization{ID: "org-1", Name: "Green Works"}))
	require.NoError(t, s.PutOrganization(ctx, &models.Organization{ID: "org-2", Name: "Other"}))
	require.NoError(t, s.PutMaterial(ctx, &models.Material{
		ID: "mat-1", OrgID: "org-1", Title: "Glass cullet", Unit: "kg",
		TotalQuantity: decimal.NewFromInt(100), Status: models.MaterialAvailable,
	}))

	log := logger.Nop()
	up := &fakeUploader{}
	tokens := auth.NewService("test-secret", time.Hour)
	router := SetupRouter(Deps{
		Engine:   marketplace.NewEngine(s, ledger.New(log), log),
		Feedback: marketplace.NewFeedbackService(s, log),
		Reports:  marketplace.NewReportService(s, up, log),
		Tokens:   tokens,
		Log:      log,
	})
	return &testServer{router: router, tokens: tokens, store: s, uploader: up}
}

func (ts *testServer) token(t *testing.T, id string, kind models.ActorKind) string {
	t.Helper()
	tok, err := ts.tokens.GenerateJWT(models.Actor{ID: id, Kind: kind})
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/org/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/org/requests", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/org/requests", ts.token(t, "b1", models.ActorBuyer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/org/requests", ts.token(t, "org-1", models.ActorOrganization), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	buyer := ts.token(t, "b1", models.ActorBuyer)
	org := ts.token(t, "org-1", models.ActorOrganization)
	other := ts.token(t, "org-2", models.ActorOrganization)

	w := ts.do(t, http.MethodPost, "/api/v1/materials/mat-1/requests", buyer, gin.H{"quantity": "30", "message": "for tiles"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Request](t, w)
	assert.Equal(t, models.RequestPending, created.Status)

	w = ts.do(t, http.MethodPost, "/api/v1/materials/mat-1/requests", buyer, gin.H{"quantity": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "duplicate_request", decode[errorBody](t, w).Error.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/requests/"+created.ID, buyer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPut, "/api/v1/requests/"+created.ID+"/status", other, gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPut, "/api/v1/requests/"+created.ID+"/status", org, gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[errorBody](t, w).Error.Code)

	w = ts.do(t, http.MethodPut, "/api/v1/requests/"+created.ID+"/status", org, gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RequestAccepted, decode[models.Request](t, w).Status)

	w = ts.do(t, http.MethodPut, "/api/v1/requests/"+created.ID+"/status", org, gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_transition", decode[errorBody](t, w).Error.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/materials/mat-1/requests", org, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Request](t, w), 1)

	w = ts.do(t, http.MethodGet, "/api/v1/requests/missing", org, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOverdrawIsRejected(t *testing.T) {
	ts := newTestServer(t)
	org := ts.token(t, "org-1", models.ActorOrganization)

	var ids []string
	for _, b := range []string{"b1", "b2"} {
		w := ts.do(t, http.MethodPost, "/api/v1/materials/mat-1/requests", ts.token(t, b, models.ActorBuyer), gin.H{"quantity": 60})
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode[models.Request](t, w).ID)
	}

	w := ts.do(t, http.MethodPut, "/api/v1/requests/"+ids[0]+"/status", org, gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPut, "/api/v1/requests/"+ids[1]+"/status", org, gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "insufficient_quantity", decode[errorBody](t, w).Error.Code)
}

func TestBlockedOrganizationGets403(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/materials/mat-1/requests", ts.token(t, "b1", models.ActorBuyer), gin.H{"quantity": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[models.Request](t, w).ID

	require.NoError(t, ts.store.SetBlocked("org-1", true))
	w = ts.do(t, http.MethodPut, "/api/v1/requests/"+id+"/status", ts.token(t, "org-1", models.ActorOrganization), gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "organization_blocked", decode[errorBody](t, w).Error.Code)
}

func TestFeedbackAndReports(t *testing.T) {
	ts := newTestServer(t)
	buyer := ts.token(t, "b1", models.ActorBuyer)
	org := ts.token(t, "org-1", models.ActorOrganization)

	w := ts.do(t, http.MethodPost, "/api/v1/materials/mat-1/requests", buyer, gin.H{"quantity": 10})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[models.Request](t, w).ID

	w = ts.do(t, http.MethodPost, "/api/v1/requests/"+id+"/feedback", buyer, gin.H{"rating": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code, "feedback before completion")

	for _, status := range []string{"accepted", "completed"} {
		w = ts.do(t, http.MethodPut, "/api/v1/requests/"+id+"/status", org, gin.H{"status": status})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPost, "/api/v1/requests/"+id+"/feedback", buyer, gin.H{"rating": 4, "comment": "clean glass"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = ts.do(t, http.MethodPost, "/api/v1/requests/"+id+"/feedback", buyer, gin.H{"rating": 4})
	assert.Equal(t, "duplicate_feedback", decode[errorBody](t, w).Error.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/requests/"+id+"/feedback", org, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decode[models.Feedback](t, w).Rating)

	w = ts.do(t, http.MethodPost, "/api/v1/requests/"+id+"/reports", org, gin.H{"description": "no reason"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/requests/"+id+"/reports", org, gin.H{"reason": "no-show", "description": "missed pickup twice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	report := decode[models.Report](t, w)
	assert.Equal(t, "b1", report.BuyerID)

	w = ts.do(t, http.MethodGet, "/api/v1/org/reports", org, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Report](t, w), 1)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "Pickup.JPG")
	require.NoError(t, err)
	_, err = io.Copy(fw, strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/"+report.ID+"/evidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+org)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[models.Report](t, rec)
	assert.True(t, strings.HasPrefix(updated.EvidenceURL, "https://cdn.example.com/reports/"+report.ID+"/"))
	assert.True(t, strings.HasSuffix(ts.uploader.key, ".jpg"))
	assert.Equal(t, "jpeg-bytes", ts.uploader.body)
}

func TestMarkTransferred(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/materials/mat-1/transfer", ts.token(t, "org-2", models.ActorOrganization), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/materials/mat-1/transfer", ts.token(t, "org-1", models.ActorOrganization), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.MaterialTransferred, decode[models.Material](t, w).Status)

	w = ts.do(t, http.MethodPost, "/api/v1/materials/mat-1/requests", ts.token(t, "b1", models.ActorBuyer), gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "material_unavailable", decode[errorBody](t, w).Error.Code)
}
