package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-alert-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/query"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockQueries struct {
	mock.Mock
}

func (m *mockQueries) Near(ctx context.Context, center domain.GeoPoint, radius float64, f store.Filter, limit int) (query.NearResult, error) {
	args := m.Called(ctx, center, radius, f, limit)
	return args.Get(0).(query.NearResult), args.Error(1)
}

func (m *mockQueries) Range(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	args := m.Called(ctx, start, end)
	return events(args.Get(0)), args.Error(1)
}

func (m *mockQueries) ByType(ctx context.Context, t domain.Type) ([]domain.Event, error) {
	args := m.Called(ctx, t)
	return events(args.Get(0)), args.Error(1)
}

func (m *mockQueries) BySeverity(ctx context.Context, level domain.Severity) ([]domain.Event, error) {
	args := m.Called(ctx, level)
	return events(args.Get(0)), args.Error(1)
}

func (m *mockQueries) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	args := m.Called(ctx, limit)
	return events(args.Get(0)), args.Error(1)
}

func (m *mockQueries) Scoped(ctx context.Context) (query.ScopedResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(query.ScopedResult), args.Error(1)
}

func (m *mockQueries) Stats(ctx context.Context) (query.Overview, error) {
	args := m.Called(ctx)
	return args.Get(0).(query.Overview), args.Error(1)
}

func events(v any) []domain.Event {
	if v == nil {
		return nil
	}
	return v.([]domain.Event)
}

func newTestServer(readyErr error, q httpadapter.Queries) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

var quake = domain.Event{
	ID:        "evt-1",
	Type:      domain.TypeEarthquake,
	Source:    domain.SourceSeismic,
	Severity:  domain.SeverityHigh,
	Location:  domain.GeoPoint{Lon: 76.3, Lat: 9.9, Address: "Kochi, Kerala, India"},
	Title:     "M 6.1 - Kochi",
	Timestamp: time.Date(2025, 8, 14, 6, 0, 0, 0, time.UTC),
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(newTestServer(nil, &mockQueries{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(newTestServer(nil, &mockQueries{}), "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(newTestServer(fmt.Errorf("no cycle yet"), &mockQueries{}), "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newTestServer(nil, &mockQueries{}), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRecent(t *testing.T) {
	q := &mockQueries{}
	q.On("Recent", mock.Anything, 5).Return([]domain.Event{quake}, nil)

	rec := get(newTestServer(nil, q), "/v1/events/recent?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []domain.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "evt-1", body[0].ID)
	q.AssertExpectations(t)
}

func TestRecent_EmptyIsArray(t *testing.T) {
	q := &mockQueries{}
	q.On("Recent", mock.Anything, 0).Return(nil, nil)

	rec := get(newTestServer(nil, q), "/v1/events/recent")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestNear_ParsesFilter(t *testing.T) {
	q := &mockQueries{}
	want := store.Filter{Types: []domain.Type{domain.TypeEarthquake, domain.TypeFlood}, MinSeverity: domain.SeverityMedium}
	q.On("Near", mock.Anything, domain.GeoPoint{Lon: 76.3, Lat: 9.9}, 5000.0, want, 20).
		Return(query.NearResult{Hits: []store.Hit{{Event: quake, DistanceMeters: 120}}, Stats: []query.TypeStats{}}, nil)

	rec := get(newTestServer(nil, q), "/v1/events/near?lat=9.9&lon=76.3&radius=5000&limit=20&type=earthquake&type=FLOOD&minSeverity=medium")
	require.Equal(t, http.StatusOK, rec.Code)

	var body query.NearResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Hits, 1)
	assert.Equal(t, 120.0, body.Hits[0].DistanceMeters)
	q.AssertExpectations(t)
}

func TestNear_BadRequests(t *testing.T) {
	srv := newTestServer(nil, &mockQueries{})
	for _, target := range []string{
		"/v1/events/near?lon=76",
		"/v1/events/near?lat=north&lon=76",
		"/v1/events/near?lat=9&lon=76&limit=-1",
		"/v1/events/near?lat=9&lon=76&type=meteor",
		"/v1/events/near?lat=9&lon=76&minSeverity=severe",
	} {
		assert.Equal(t, http.StatusBadRequest, get(srv, target).Code, target)
	}
}

func TestNear_InvalidArgumentFromService(t *testing.T) {
	q := &mockQueries{}
	q.On("Near", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(query.NearResult{}, fmt.Errorf("%w: latitude 95 out of range", query.ErrInvalidArgument))

	rec := get(newTestServer(nil, q), "/v1/events/near?lat=95&lon=76")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "latitude")
}

func TestRange(t *testing.T) {
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)
	q := &mockQueries{}
	q.On("Range", mock.Anything, start, end).Return([]domain.Event{quake}, nil)

	rec := get(newTestServer(nil, q), "/v1/events/range?start=2025-08-01T00:00:00Z&end=2025-08-31T00:00:00Z")
	assert.Equal(t, http.StatusOK, rec.Code)
	q.AssertExpectations(t)

	assert.Equal(t, http.StatusBadRequest, get(newTestServer(nil, q), "/v1/events/range?start=yesterday&end=2025-08-31T00:00:00Z").Code)
	assert.Equal(t, http.StatusBadRequest, get(newTestServer(nil, q), "/v1/events/range?start=2025-08-01T00:00:00Z").Code)
}

func TestByTypeAndSeverity(t *testing.T) {
	q := &mockQueries{}
	q.On("ByType", mock.Anything, domain.TypeEarthquake).Return([]domain.Event{quake}, nil)
	q.On("ByType", mock.Anything, domain.Type("meteor")).
		Return(nil, fmt.Errorf("%w: unknown type", query.ErrInvalidArgument))
	q.On("BySeverity", mock.Anything, domain.SeverityCritical).Return([]domain.Event{}, nil)
	srv := newTestServer(nil, q)

	assert.Equal(t, http.StatusOK, get(srv, "/v1/events/type/earthquake").Code)
	assert.Equal(t, http.StatusBadRequest, get(srv, "/v1/events/type/meteor").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/v1/events/severity/critical").Code)
	assert.Equal(t, http.StatusBadRequest, get(srv, "/v1/events/severity/5").Code)
	q.AssertExpectations(t)
}

func TestScopedAndStats(t *testing.T) {
	q := &mockQueries{}
	q.On("Scoped", mock.Anything).Return(query.ScopedResult{All: []domain.Event{quake}, InScope: []domain.Event{quake}}, nil)
	q.On("Stats", mock.Anything).Return(query.Overview{Total: 1, ByType: map[domain.Type]int{domain.TypeEarthquake: 1}}, nil)
	srv := newTestServer(nil, q)

	rec := get(srv, "/v1/events/scoped")
	require.Equal(t, http.StatusOK, rec.Code)
	var scoped query.ScopedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scoped))
	assert.Len(t, scoped.InScope, 1)

	rec = get(srv, "/v1/events/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"byType":{"earthquake":1}`)
}

func TestStoreFailureIs500(t *testing.T) {
	q := &mockQueries{}
	q.On("Stats", mock.Anything).Return(query.Overview{}, errors.New("clickhouse: connection refused"))

	rec := get(newTestServer(nil, q), "/v1/events/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "clickhouse", "internal errors are not leaked")
}

func TestAllReady(t *testing.T) {
	assert.NoError(t, httpadapter.AllReady{&mockReadiness{}, &mockReadiness{}}.CheckReadiness(context.Background()))

	notReady := errors.New("collector: no cycle completed")
	err := httpadapter.AllReady{&mockReadiness{}, &mockReadiness{err: notReady}}.CheckReadiness(context.Background())
	assert.ErrorIs(t, err, notReady)
}
