package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"braindrain/internal/acs"
	"braindrain/internal/census"
	"braindrain/internal/master"
	"braindrain/internal/report"
	"braindrain/internal/storage"
)

func testTable() master.Table {
	return master.Table{
		MedianRate:          acs.Of(1),
		MedianConcentration: acs.Of(20),
		Records: []master.Record{
			{State: "Alpha", NetEducatedMigrants: acs.Of(4_000), NetMigrationRate: acs.Of(4),
				TalentConcentration: acs.Of(17.5), MedianEarningsBachelors: acs.Of(50_000), Segment: master.RisingGainer},
			{State: "Beta", NetEducatedMigrants: acs.Of(1_000), NetMigrationRate: acs.Of(1),
				TalentConcentration: acs.Of(25), MedianEarningsBachelors: acs.Of(60_000), Segment: master.AtRiskRetainer},
			{State: "Gamma", NetEducatedMigrants: acs.Of(-2_000), NetMigrationRate: acs.Of(-2),
				TalentConcentration: acs.Of(10), MedianEarningsBachelors: acs.Of(40_000), Segment: master.BrainDrainRisk},
			{State: "New Delta", NetEducatedMigrants: acs.Of(9_000), NetMigrationRate: acs.Of(6),
				TalentConcentration: acs.Of(30), MedianEarningsBachelors: acs.Of(70_000), Segment: master.TalentHub},
		},
	}
}

func staticSource(t master.Table) TableSource {
	return SourceFunc(func(context.Context) (master.Table, error) { return t, nil })
}

func newTestRouter() http.Handler {
	return NewServer(staticSource(testTable()), Config{Port: 8080}).Router()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	rec := get(t, newTestRouter(), "/health")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]string
	decode(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	server := NewServer(staticSource(testTable()), Config{
		Port:        8080,
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	})
	router := server.Router()

	tests := []struct {
		name       string
		apiKey     string
		keyHeader  string
		wantStatus int
	}{
		{name: "no key", wantStatus: http.StatusUnauthorized},
		{name: "invalid key", apiKey: "wrong-key", keyHeader: "X-API-Key", wantStatus: http.StatusForbidden},
		{name: "valid key via X-API-Key", apiKey: "test-key-123", keyHeader: "X-API-Key", wantStatus: http.StatusOK},
		{name: "valid key via Bearer", apiKey: "another-key", keyHeader: "Authorization", wantStatus: http.StatusOK},
		{name: "valid key via query", apiKey: "test-key-123", keyHeader: "query", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/health"
			if tt.keyHeader == "query" {
				target += "?api_key=" + tt.apiKey
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			switch tt.keyHeader {
			case "Authorization":
				req.Header.Set("Authorization", "Bearer "+tt.apiKey)
			case "X-API-Key":
				req.Header.Set("X-API-Key", tt.apiKey)
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight reached handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/states", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}

func TestStatesEndpoint(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"table order", "/states", []string{"Alpha", "Beta", "Gamma", "New Delta"}},
		{"sorted desc", "/states?sort=net_migration_rate", []string{"New Delta", "Alpha", "Beta", "Gamma"}},
		{"sorted asc", "/states?sort=talent_concentration&order=asc", []string{"Gamma", "Alpha", "Beta", "New Delta"}},
		{"limit", "/states?sort=net_migration_rate&limit=2", []string{"New Delta", "Alpha"}},
		{"segment", "/states?segment=Brain+Drain+Risk", []string{"Gamma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}

			var resp struct {
				Count         int `json:"count"`
				NatMedianRate any `json:"nat_median_rate"`
				States        []struct {
					State string `json:"state"`
				} `json:"states"`
			}
			decode(t, rec, &resp)

			if resp.Count != len(tt.want) {
				t.Fatalf("expected %d states, got %d", len(tt.want), resp.Count)
			}
			for i, s := range resp.States {
				if s.State != tt.want[i] {
					t.Errorf("states[%d] = %q, want %q", i, s.State, tt.want[i])
				}
			}
			if resp.NatMedianRate != 1.0 {
				t.Errorf("expected nat_median_rate 1, got %v", resp.NatMedianRate)
			}
		})
	}
}

func TestStatesEndpoint_BadRequest(t *testing.T) {
	router := newTestRouter()

	for _, target := range []string{
		"/states?sort=vibes",
		"/states?order=sideways",
		"/states?segment=Nope",
		"/states?limit=0",
		"/states?limit=abc",
	} {
		t.Run(target, func(t *testing.T) {
			rec := get(t, router, target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestStateEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := get(t, router, "/states/New%20Delta")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var r master.Record
	decode(t, rec, &r)
	if r.Segment != master.TalentHub {
		t.Errorf("expected Talent Hub, got %s", r.Segment)
	}

	rec = get(t, router, "/states/gamma")
	if rec.Code != http.StatusOK {
		t.Errorf("expected case-insensitive match, got %d", rec.Code)
	}

	rec = get(t, router, "/states/Atlantis")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestSegmentsEndpoint(t *testing.T) {
	rec := get(t, newTestRouter(), "/segments")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp map[string][]string
	decode(t, rec, &resp)
	if len(resp) != 4 {
		t.Errorf("expected 4 segments, got %d", len(resp))
	}
	if got := resp["Talent Hub"]; len(got) != 1 || got[0] != "New Delta" {
		t.Errorf("unexpected Talent Hub members: %v", got)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	rec := get(t, newTestRouter(), "/summary?top=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp report.Summary
	decode(t, rec, &resp)
	if resp.States != 4 {
		t.Errorf("expected 4 states, got %d", resp.States)
	}
	if len(resp.TopGainers) != 1 || resp.TopGainers[0].State != "New Delta" {
		t.Errorf("unexpected top gainers: %+v", resp.TopGainers)
	}
	if len(resp.TopLosers) != 1 || resp.TopLosers[0].State != "Gamma" {
		t.Errorf("unexpected top losers: %+v", resp.TopLosers)
	}
	if v, _ := resp.NetEducatedMigrants.Float(); v != 12_000 {
		t.Errorf("expected net total 12000, got %v", v)
	}

	if rec := get(t, newTestRouter(), "/summary?top=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestTrendEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := get(t, router, "/trend?x=median_earnings_bachelors&y=net_migration_rate")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var fit report.Fit
	decode(t, rec, &fit)
	if fit.N != 4 {
		t.Errorf("expected 4 points, got %d", fit.N)
	}
	if fit.Beta <= 0 {
		t.Errorf("expected positive slope, got %v", fit.Beta)
	}

	if rec := get(t, router, "/trend?x=bogus"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
	// No graduate earnings in the fixture: zero usable points.
	if rec := get(t, router, "/trend?x=median_earnings_graduate"); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", rec.Code)
	}
}

func TestTrendEndpoint_ConstantColumn(t *testing.T) {
	tbl := testTable()
	for i := range tbl.Records {
		tbl.Records[i].MedianEarningsGraduate = acs.Of(80_000)
	}
	router := NewServer(staticSource(tbl), Config{}).Router()

	rec := get(t, router, "/trend?x=median_earnings_graduate&y=net_migration_rate")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["error"] == "" {
		t.Error("expected error message")
	}

	// Constant y is a valid flat fit with an undefined correlation.
	rec = get(t, router, "/trend?x=net_migration_rate&y=median_earnings_graduate")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var fit report.Fit
	decode(t, rec, &fit)
	if fit.Correlation.Valid() {
		t.Errorf("expected null correlation, got %v", fit.Correlation)
	}
	if fit.Alpha != 80_000 {
		t.Errorf("expected alpha 80000, got %v", fit.Alpha)
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"bad": math.NaN()})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["error"] == "" {
		t.Error("expected error message")
	}
}

func TestCompareEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := get(t, router, "/compare?states=Alpha,Gamma&metrics=talent_concentration")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var cmp report.Comparison
	decode(t, rec, &cmp)

	// Concentration spans 10..30.
	if v, _ := cmp.States["Alpha"]["talent_concentration"].Float(); v != 0.375 {
		t.Errorf("expected Alpha 0.375, got %v", v)
	}
	if v, _ := cmp.States["Gamma"]["talent_concentration"].Float(); v != 0 {
		t.Errorf("expected Gamma 0, got %v", v)
	}

	rec = get(t, router, "/compare?states=Alpha")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	decode(t, rec, &cmp)
	if len(cmp.Metrics) != len(defaultCompareMetrics) {
		t.Errorf("expected default metrics, got %v", cmp.Metrics)
	}

	if rec := get(t, router, "/compare"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
	if rec := get(t, router, "/compare?states=Alpha&metrics=bogus"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestSourceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no snapshot", storage.ErrNoSnapshot, http.StatusServiceUnavailable},
		{"census down", &census.DataSourceError{Table: "B07009", Op: "status", Err: errors.New("503")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := SourceFunc(func(context.Context) (master.Table, error) { return master.Table{}, tt.err })
			router := NewServer(src, Config{}).Router()

			rec := get(t, router, "/summary")
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp map[string]string
			decode(t, rec, &resp)
			if resp["error"] == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestFromStore(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite("")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	router := NewServer(FromStore(store), Config{Store: store}).Router()

	if rec := get(t, router, "/states"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 before first snapshot, got %d", rec.Code)
	}

	snap := &storage.Snapshot{TakenAt: time.Now(), Year: 2022, Table: testTable()}
	if _, err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	rec := get(t, router, "/states/Beta")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = get(t, router, "/snapshots")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var list []storage.SnapshotInfo
	decode(t, rec, &list)
	if len(list) != 1 || list[0].StateCount != 4 {
		t.Errorf("unexpected snapshot list: %+v", list)
	}
}

func TestFromAssembler(t *testing.T) {
	fetch := fetcherFunc(func(context.Context, acs.Table) ([]acs.StateRecord, error) {
		return nil, &census.DataSourceError{Table: "B07009", Op: "request", Err: errors.New("dial")}
	})
	router := NewServer(FromAssembler(master.NewAssembler(fetch)), Config{}).Router()

	if rec := get(t, router, "/states"); rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
}

type fetcherFunc func(context.Context, acs.Table) ([]acs.StateRecord, error)

func (f fetcherFunc) Fetch(ctx context.Context, t acs.Table) ([]acs.StateRecord, error) {
	return f(ctx, t)
}
