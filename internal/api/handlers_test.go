// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityops/data-api/internal/auth"
	"github.com/cityops/data-api/internal/cache"
	"github.com/cityops/data-api/internal/config"
	"github.com/cityops/data-api/internal/health"
	"github.com/cityops/data-api/internal/model"
	"github.com/cityops/data-api/internal/store"
)

// tokens accepted by the fake verifier
const (
	userToken  = "user-token"
	adminToken = "admin-token"
	noneToken  = "no-roles-token"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, token string) (auth.Principal, error) {
	switch token {
	case userToken:
		return auth.Principal{Subject: "u1", Username: "user", Roles: []string{RoleUser}}, nil
	case adminToken:
		return auth.Principal{Subject: "a1", Username: "admin", Roles: []string{RoleUser, RoleAdmin}}, nil
	case noneToken:
		return auth.Principal{Subject: "n1", Username: "none"}, nil
	default:
		return auth.Principal{}, auth.ErrInvalidSig
	}
}

type fakeOccurrenceStore struct {
	nextID int64
	items  map[int64]model.Occurrence
	lists  int
}

func newFakeOccurrenceStore() *fakeOccurrenceStore {
	return &fakeOccurrenceStore{nextID: 1, items: make(map[int64]model.Occurrence)}
}

func (f *fakeOccurrenceStore) Create(ctx context.Context, occ model.Occurrence) (model.Occurrence, error) {
	occ.ID = f.nextID
	f.nextID++
	f.items[occ.ID] = occ
	return occ, nil
}

func (f *fakeOccurrenceStore) GetByID(ctx context.Context, id int64) (model.Occurrence, error) {
	occ, ok := f.items[id]
	if !ok {
		return model.Occurrence{}, store.ErrNotFound
	}
	return occ, nil
}

func (f *fakeOccurrenceStore) List(ctx context.Context, filter model.OccurrenceFilter) ([]model.Occurrence, error) {
	f.lists++
	var out []model.Occurrence
	for _, occ := range f.items {
		if filter.TypeTag != "" && occ.TypeTag != filter.TypeTag {
			continue
		}
		out = append(out, occ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeOccurrenceStore) Update(ctx context.Context, occ model.Occurrence) error {
	if _, ok := f.items[occ.ID]; !ok {
		return store.ErrNotFound
	}
	f.items[occ.ID] = occ
	return nil
}

func (f *fakeOccurrenceStore) Deactivate(ctx context.Context, id int64, now time.Time) error {
	occ, ok := f.items[id]
	if !ok {
		return store.ErrNotFound
	}
	occ.Active = false
	occ.UpdateAt = now
	f.items[id] = occ
	return nil
}

type fakeAnalysisTypeStore struct {
	nextID int64
	items  map[int64]model.AnalysisType
}

func newFakeAnalysisTypeStore() *fakeAnalysisTypeStore {
	return &fakeAnalysisTypeStore{nextID: 1, items: make(map[int64]model.AnalysisType)}
}

func (f *fakeAnalysisTypeStore) Create(ctx context.Context, at model.AnalysisType) (model.AnalysisType, error) {
	for _, existing := range f.items {
		if existing.Tag == at.Tag {
			return model.AnalysisType{}, store.ErrDuplicateTag
		}
	}
	at.ID = f.nextID
	f.nextID++
	f.items[at.ID] = at
	return at, nil
}

func (f *fakeAnalysisTypeStore) GetByID(ctx context.Context, id int64) (model.AnalysisType, error) {
	at, ok := f.items[id]
	if !ok {
		return model.AnalysisType{}, store.ErrNotFound
	}
	return at, nil
}

func (f *fakeAnalysisTypeStore) List(ctx context.Context) ([]model.AnalysisType, error) {
	var out []model.AnalysisType
	for _, at := range f.items {
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAnalysisTypeStore) Update(ctx context.Context, at model.AnalysisType) error {
	if _, ok := f.items[at.ID]; !ok {
		return store.ErrNotFound
	}
	f.items[at.ID] = at
	return nil
}

func (f *fakeAnalysisTypeStore) Deactivate(ctx context.Context, id int64) error {
	at, ok := f.items[id]
	if !ok {
		return store.ErrNotFound
	}
	at.IsActive = false
	f.items[id] = at
	return nil
}

type testEnv struct {
	server *Server
	router http.Handler
	occ    *fakeOccurrenceStore
	atypes *fakeAnalysisTypeStore
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.Keycloak.ServerURL = "http://localhost:8081"
	cfg.Keycloak.Realm = "data-api"
	for _, fn := range mutate {
		fn(&cfg)
	}

	occ := newFakeOccurrenceStore()
	atypes := newFakeAnalysisTypeStore()

	srv, err := NewServer(cfg, Deps{
		Occurrences:   occ,
		AnalysisTypes: atypes,
		Cache:         cache.NewMemoryCache(0),
		Verifier:      fakeVerifier{},
		Health:        health.NewManager(cfg.Version),
	})
	require.NoError(t, err)

	return &testEnv{server: srv, router: srv.Router(), occ: occ, atypes: atypes}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) model.OccurrenceView {
	t.Helper()
	var view model.OccurrenceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func TestCreateOccurrence(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/occurrence", userToken, model.OccurrenceCreate{
		TypeTag:  "flooding",
		Resume:   "flooded crossing",
		Location: &model.Point{Lat: -23.55, Lon: -46.63},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	view := decodeView(t, rec)
	assert.Equal(t, "1", view.ID)
	assert.Equal(t, "flooding", view.TypeTag)
	assert.True(t, view.Active, "active defaults to true")
	require.NotNil(t, view.Location)

	// timestamps render in the display zone without a zone designator
	_, err := time.Parse(model.TimestampFormat, view.RegisterAt)
	assert.NoError(t, err)
}

func TestCreateOccurrenceValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/occurrence", userToken, model.OccurrenceCreate{
		TypeTag: "flooding",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bad_request", resp.Error)
	assert.Contains(t, resp.Message, "resume")
}

func TestGetOccurrenceNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/occurrence/42", userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOccurrenceInvalidID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/occurrence/abc", userToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOccurrencesFilter(t *testing.T) {
	env := newTestEnv(t)

	for i, tag := range []string{"flooding", "landslide", "flooding"} {
		rec := env.do(t, http.MethodPost, "/occurrence", userToken, model.OccurrenceCreate{
			TypeTag: tag, Resume: fmt.Sprintf("r%d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/occurrence?typeTag=flooding", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []model.OccurrenceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 2)

	rec = env.do(t, http.MethodGet, "/occurrence?limit=-1", userToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOccurrencesServedFromCache(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/occurrence", userToken, model.OccurrenceCreate{
		TypeTag: "flooding", Resume: "r",
	})

	rec := env.do(t, http.MethodGet, "/occurrence", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/occurrence", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, env.occ.lists, "second list must be a cache hit")

	// a write invalidates the cached lists
	env.do(t, http.MethodPost, "/occurrence", userToken, model.OccurrenceCreate{
		TypeTag: "noise", Resume: "r2",
	})
	rec = env.do(t, http.MethodGet, "/occurrence", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, env.occ.lists)

	var views []model.OccurrenceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 2)
}

func TestUpdateOccurrence(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/occurrence", userToken, model.OccurrenceCreate{
		TypeTag: "flooding", Resume: "before",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resume := "after"
	rec = env.do(t, http.MethodPut, "/occurrence/1", userToken, model.OccurrenceUpdate{Resume: &resume})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := decodeView(t, rec)
	assert.Equal(t, "after", view.Resume)
	assert.Equal(t, "flooding", view.TypeTag, "absent fields stay unchanged")

	// empty update payload is rejected
	rec = env.do(t, http.MethodPut, "/occurrence/1", userToken, model.OccurrenceUpdate{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOccurrenceIsSoft(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/occurrence", userToken, model.OccurrenceCreate{
		TypeTag: "flooding", Resume: "r",
	})

	rec := env.do(t, http.MethodDelete, "/occurrence/1", userToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/occurrence/1", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, "soft-deleted records stay readable")
	assert.False(t, decodeView(t, rec).Active)

	rec = env.do(t, http.MethodDelete, "/occurrence/99", userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRejections(t *testing.T) {
	env := newTestEnv(t)

	// no token
	rec := env.do(t, http.MethodGet, "/occurrence", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// garbage token
	rec = env.do(t, http.MethodGet, "/occurrence", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// valid token without the required role
	rec = env.do(t, http.MethodGet, "/occurrence", noneToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAnalysisTypeAdminOnlyWrites(t *testing.T) {
	env := newTestEnv(t)

	payload := model.AnalysisTypeCreate{Name: "Water Level", Tag: "water_level", Icon: "droplet"}

	// plain user may read but not write the catalog
	rec := env.do(t, http.MethodPost, "/analysis-type", userToken, payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/analysis-type", adminToken, payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/analysis-type", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []model.AnalysisTypeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "water_level", views[0].Tag)
}

func TestAnalysisTypeDuplicateTag(t *testing.T) {
	env := newTestEnv(t)

	payload := model.AnalysisTypeCreate{Name: "Water Level", Tag: "water_level", Icon: "droplet"}
	rec := env.do(t, http.MethodPost, "/analysis-type", adminToken, payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/analysis-type", adminToken, payload)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conflict", resp.Error)
}

func TestAuthDisabledMode(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Keycloak.Disabled = true
	})

	// no token needed, writes included
	rec := env.do(t, http.MethodPost, "/analysis-type", "", model.AnalysisTypeCreate{
		Name: "n", Tag: "t", Icon: "i",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestVersionEndpointIsPublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/version", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp versionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "data-api", resp.Service)
	assert.Equal(t, "test", resp.Version)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Minute
	})

	env.do(t, http.MethodGet, "/version", "", nil)
	env.do(t, http.MethodGet, "/version", "", nil)
	rec := env.do(t, http.MethodGet, "/version", "", nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitReload(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimitRequests = 1
		cfg.RateLimitWindow = time.Minute
	})

	env.do(t, http.MethodGet, "/version", "", nil)
	rec := env.do(t, http.MethodGet, "/version", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// raising the limit takes effect without rebuilding the router
	relaxed := config.Defaults()
	relaxed.RateLimitRequests = 100
	relaxed.RateLimitWindow = time.Minute
	env.server.ApplyConfig(relaxed)

	rec = env.do(t, http.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// and so does tightening it
	strict := config.Defaults()
	strict.RateLimitRequests = 1
	strict.RateLimitWindow = time.Minute
	env.server.ApplyConfig(strict)

	env.do(t, http.MethodGet, "/version", "", nil)
	rec = env.do(t, http.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	// generated when absent
	rec = env.do(t, http.MethodGet, "/version", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/version", "", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/occurrence", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// unknown origin gets no allow header
	req = httptest.NewRequest(http.MethodOptions, "/occurrence", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
