package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/pkg/api/auth"
	"github.com/reelcache/reelcache/pkg/content"
	"github.com/reelcache/reelcache/pkg/download"
	"github.com/reelcache/reelcache/pkg/models"
	"github.com/reelcache/reelcache/pkg/quota"
	"github.com/reelcache/reelcache/pkg/store"
)

// stubQueue records enqueued jobs without running them.
type stubQueue struct {
	jobs []download.Job
}

func (q *stubQueue) Enqueue(job download.Job) bool {
	q.jobs = append(q.jobs, job)
	return true
}

type apiFixture struct {
	store  *store.GORMStore
	quotas *quota.Service
	queue  *stubQueue
	jwt    *auth.JWTService
	router http.Handler
	dir    string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	st, err := store.NewInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               "test-secret-key-for-testing-only-32chars",
		Issuer:               "reelcache",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create JWT service: %v", err)
	}

	quotas := quota.New(st, quota.Config{
		Tiers: map[string]bytesize.ByteSize{
			"basic":    5 * bytesize.GiB,
			"standard": 20 * bytesize.GiB,
			"premium":  100 * bytesize.GiB,
		},
		AlertThresholdPercent: 80,
	})
	queue := &stubQueue{}
	dir := t.TempDir()

	downloads := download.NewService(st, quotas, queue, download.Config{DownloadDir: dir}, nil)

	router := NewRouter(RouterDeps{
		Store:     st,
		Objects:   content.NewMemoryStore(),
		Downloads: downloads,
		Quotas:    quotas,
		JWT:       jwtService,
	})

	return &apiFixture{
		store:  st,
		quotas: quotas,
		queue:  queue,
		jwt:    jwtService,
		router: router,
		dir:    dir,
	}
}

func (f *apiFixture) seedUser(t *testing.T, role string, quotaBytes int64) (*models.User, string) {
	t.Helper()

	hash, err := models.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        uuid.New().String() + "@example.com",
		PasswordHash: hash,
		DisplayName:  "Test Viewer",
		Role:         role,
		Enabled:      true,
	}
	if _, err := f.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if quotaBytes > 0 {
		err := f.store.UpsertQuota(context.Background(), &models.StorageQuota{
			UserID:     user.ID,
			Tier:       "standard",
			TotalBytes: quotaBytes,
		})
		if err != nil {
			t.Fatalf("Failed to create quota: %v", err)
		}
	}

	pair, err := f.jwt.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("Failed to generate tokens: %v", err)
	}
	return user, pair.AccessToken
}

func (f *apiFixture) seedContent(t *testing.T, sizeBytes int64) *models.Content {
	t.Helper()

	c := &models.Content{
		ID:        uuid.New().String(),
		Title:     "Big Buck Bunny",
		RemoteKey: "contents/bbb",
		SizeBytes: sizeBytes,
		Published: true,
	}
	if _, err := f.store.CreateContent(context.Background(), c); err != nil {
		t.Fatalf("Failed to create content: %v", err)
	}
	return c
}

// do sends a JSON request through the router and returns the recorder.
func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Success bool           `json:"success"`
		Reason  string         `json:"reason"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return envelope.Data
}

func TestRouter_Health(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Liveness status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = f.do(t, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Readiness status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_RequiresAuth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/downloads", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Unauthenticated status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/downloads", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Bad token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_Login(t *testing.T) {
	f := newAPIFixture(t)
	user, _ := f.seedUser(t, "user", 0)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    user.Email,
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Login status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	data := decodeData(t, rec)
	tokens, ok := data["tokens"].(map[string]any)
	if !ok || tokens["access_token"] == "" {
		t.Errorf("Login response missing tokens: %v", data)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    user.Email,
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Bad password status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_CreateDownload(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedUser(t, "user", 1<<30)
	c := f.seedContent(t, 500_000_000)

	rec := f.do(t, http.MethodPost, "/api/v1/downloads", token, map[string]string{
		"content_id": c.ID,
		"quality":    "720p",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if len(f.queue.jobs) != 1 {
		t.Errorf("Enqueued jobs = %d, want 1", len(f.queue.jobs))
	}

	// Same content again conflicts while the first copy is live
	rec = f.do(t, http.MethodPost, "/api/v1/downloads", token, map[string]string{
		"content_id": c.ID,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("Duplicate status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRouter_CreateDownloadQuotaExceeded(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedUser(t, "user", 100_000_000)
	c := f.seedContent(t, 500_000_000)

	rec := f.do(t, http.MethodPost, "/api/v1/downloads", token, map[string]string{
		"content_id": c.ID,
		"quality":    "1080p",
	})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Status = %d, want %d: %s", rec.Code, http.StatusRequestEntityTooLarge, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["required_bytes"] == nil || data["available_bytes"] == nil {
		t.Errorf("Quota error payload incomplete: %v", data)
	}
}

func TestRouter_DownloadLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedUser(t, "user", 1<<30)
	c := f.seedContent(t, 100_000_000)

	rec := f.do(t, http.MethodPost, "/api/v1/downloads", token, map[string]string{
		"content_id": c.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data models.DownloadRecord `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode created record: %v", err)
	}
	id := created.Data.ID

	rec = f.do(t, http.MethodPatch, "/api/v1/downloads/"+id+"/pause", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Pause status = %d: %s", rec.Code, rec.Body.String())
	}

	// Pausing twice is an invalid transition
	rec = f.do(t, http.MethodPatch, "/api/v1/downloads/"+id+"/pause", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Double pause status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = f.do(t, http.MethodPatch, "/api/v1/downloads/"+id+"/resume", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Resume status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/downloads/"+id+"/progress", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Progress status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodDelete, "/api/v1/downloads/"+id, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Cancel status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/downloads/"+id+"/progress", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Progress after cancel status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRouter_ListDownloadsInvalidFilter(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedUser(t, "user", 0)

	rec := f.do(t, http.MethodGet, "/api/v1/downloads?status=bogus", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRouter_DownloadsScopedToUser(t *testing.T) {
	f := newAPIFixture(t)
	_, tokenA := f.seedUser(t, "user", 1<<30)
	_, tokenB := f.seedUser(t, "user", 1<<30)
	c := f.seedContent(t, 100_000_000)

	rec := f.do(t, http.MethodPost, "/api/v1/downloads", tokenA, map[string]string{
		"content_id": c.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data models.DownloadRecord `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode created record: %v", err)
	}

	// Another user cannot see or act on the record
	rec = f.do(t, http.MethodGet, "/api/v1/downloads/"+created.Data.ID+"/progress", tokenB, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Cross-user progress status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	rec = f.do(t, http.MethodDelete, "/api/v1/downloads/"+created.Data.ID, tokenB, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Cross-user cancel status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRouter_Quota(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedUser(t, "user", 1<<30)

	rec := f.do(t, http.MethodGet, "/api/v1/downloads/quota", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Quota status = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["quota"] == nil || data["alert"] == nil {
		t.Errorf("Quota payload incomplete: %v", data)
	}
}

func TestRouter_QuotaMissing(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedUser(t, "user", 0)
	c := f.seedContent(t, 100_000_000)

	rec := f.do(t, http.MethodPost, "/api/v1/downloads", token, map[string]string{
		"content_id": c.ID,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("No-quota status = %d, want %d: %s", rec.Code, http.StatusForbidden, rec.Body.String())
	}
}

func TestRouter_StreamCompletedDownload(t *testing.T) {
	f := newAPIFixture(t)
	user, token := f.seedUser(t, "user", 1<<30)
	c := f.seedContent(t, 64)

	rec := f.do(t, http.MethodPost, "/api/v1/downloads", token, map[string]string{
		"content_id": c.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data models.DownloadRecord `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode created record: %v", err)
	}
	id := created.Data.ID

	// Streaming before completion is rejected
	rec = f.do(t, http.MethodGet, "/api/v1/downloads/"+id+"/stream", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Stream before completion status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// Simulate the worker finishing the transfer
	payload := bytes.Repeat([]byte("v"), 64)
	path := filepath.Join(f.dir, user.ID, c.ID+"_1080p.mp4")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	ok, err := f.store.TransitionDownload(context.Background(), id,
		[]models.DownloadStatus{models.StatusPending},
		map[string]any{
			"status":            models.StatusCompleted,
			"bytes_transferred": int64(64),
			"progress":          100.0,
			"local_path":        path,
		})
	if err != nil || !ok {
		t.Fatalf("Failed to complete record: ok=%v err=%v", ok, err)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/downloads/"+id+"/stream", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Stream status = %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("Stream body mismatch: got %d bytes", rec.Body.Len())
	}

	// Range requests get partial content
	req := httptest.NewRequest(http.MethodGet, "/api/v1/downloads/"+id+"/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Range", "bytes=10-19")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusPartialContent {
		t.Fatalf("Range status = %d, want %d", rr.Code, http.StatusPartialContent)
	}
	if got := rr.Body.Len(); got != 10 {
		t.Errorf("Range body length = %d, want 10", got)
	}
	if cr := rr.Header().Get("Content-Range"); cr != "bytes 10-19/64" {
		t.Errorf("Content-Range = %q, want %q", cr, "bytes 10-19/64")
	}
}

func TestRouter_ContentWritesRequireCreator(t *testing.T) {
	f := newAPIFixture(t)
	_, viewerToken := f.seedUser(t, "user", 0)
	_, creatorToken := f.seedUser(t, "creator", 0)

	body := map[string]any{
		"title":      "New Clip",
		"remote_key": "contents/new-clip",
		"size_bytes": 1000,
		"published":  true,
	}

	rec := f.do(t, http.MethodPost, "/api/v1/contents", viewerToken, body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Viewer create status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/contents", creatorToken, body)
	if rec.Code != http.StatusCreated {
		t.Errorf("Creator create status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestRouter_UnpublishedHiddenFromViewers(t *testing.T) {
	f := newAPIFixture(t)
	_, viewerToken := f.seedUser(t, "user", 0)

	c := &models.Content{
		ID:        uuid.New().String(),
		Title:     "Draft",
		RemoteKey: "contents/draft",
		SizeBytes: 1000,
		Published: false,
	}
	if _, err := f.store.CreateContent(context.Background(), c); err != nil {
		t.Fatalf("Failed to create content: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/contents/"+c.ID, viewerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Draft visibility status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRouter_Engagement(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedUser(t, "user", 0)
	c := f.seedContent(t, 1000)

	rec := f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/contents/%s/rating", c.ID), token, map[string]any{
		"stars":   4,
		"comment": "fun",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Rate status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/contents/%s/rating", c.ID), token, map[string]any{
		"stars": 9,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Out-of-range stars status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/contents/%s/favorite", c.ID), token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Favorite status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/favorites", token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("List favorites status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/tickets", token, map[string]string{
		"subject": "Playback stutters",
		"body":    "4k stalls on my tablet",
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("Create ticket status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestRouter_AdminGrantsQuota(t *testing.T) {
	f := newAPIFixture(t)
	user, userToken := f.seedUser(t, string(models.RoleUser), 0)
	_, adminToken := f.seedUser(t, string(models.RoleAdmin), 0)

	// No entitlement yet.
	rec := f.do(t, http.MethodGet, "/api/v1/downloads/quota", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Quota before grant status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	// Non-admins cannot provision.
	rec = f.do(t, http.MethodPut, "/api/v1/admin/users/"+user.ID+"/quota", userToken,
		map[string]string{"tier": "standard"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Grant as viewer status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = f.do(t, http.MethodPut, "/api/v1/admin/users/"+user.ID+"/quota", adminToken,
		map[string]string{"tier": "standard"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Grant status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/downloads/quota", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Quota after grant status = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	snap, ok := data["quota"].(map[string]any)
	if !ok {
		t.Fatalf("quota payload missing: %v", data)
	}
	if snap["tier"] != "standard" {
		t.Errorf("tier = %v, want standard", snap["tier"])
	}

	rec = f.do(t, http.MethodPut, "/api/v1/admin/users/"+user.ID+"/quota", adminToken,
		map[string]string{"tier": "platinum"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Grant unknown tier status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = f.do(t, http.MethodPut, "/api/v1/admin/users/"+uuid.New().String()+"/quota", adminToken,
		map[string]string{"tier": "standard"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Grant unknown user status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
