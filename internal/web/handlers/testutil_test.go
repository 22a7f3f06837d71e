package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/mock"
)

const (
	testDim = 4
	siteLat = 50.0875
	siteLon = 14.4213
)

var testNow = time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	store      *mock.Store
	engine     *attendance.Engine
	clearance  *attendance.ClearanceService
	attendance *AttendanceHandler
	persons    *PersonsHandler
	sites      *SitesHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := mock.NewStore()
	store.AddPerson(database.Person{ID: "p1", DisplayName: "Jana Nováková", Active: true})
	store.AddPerson(database.Person{ID: "p2", DisplayName: "Petr Svoboda", Active: true})
	store.AddProfile(database.FaceProfile{ID: "f1", PersonID: "p1", Encoding: []float64{0, 0, 0, 0}, QualityScore: 0.8, IsPrimary: true})
	store.AddSite(database.Site{ID: "s1", Name: "Main Office", Latitude: siteLat, Longitude: siteLon, RadiusMeters: 100, Active: true, RequiredWeeklyCount: 2})
	store.AddSite(database.Site{ID: "s2", Name: "Closed Depot", Latitude: 49.19, Longitude: 16.61, RadiusMeters: 50})

	clock := func() time.Time { return testNow }
	policy := attendance.DefaultPolicy()
	engine, err := attendance.NewEngine(store, attendance.Options{
		Policy:    policy,
		Dimension: testDim,
		Clock:     clock,
	})
	require.NoError(t, err)

	agg := attendance.NewClearanceAggregator(policy.ClearanceLevelThresholds, clock)
	clearance := attendance.NewClearanceService(store, agg, time.UTC, nil, nil)

	persons := NewPersonsHandler(engine, clearance, zap.NewNop())
	persons.now = clock

	return &testEnv{
		store:      store,
		engine:     engine,
		clearance:  clearance,
		attendance: NewAttendanceHandler(engine, zap.NewNop()),
		persons:    persons,
		sites:      NewSitesHandler(store),
	}
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}
