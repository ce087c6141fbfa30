package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"braindrain/internal/acs"
	"braindrain/internal/master"
	"braindrain/internal/report"
	"braindrain/internal/storage"
)

// defaultCompareMetrics are the columns shown when /compare names none.
var defaultCompareMetrics = []string{
	"net_migration_rate",
	"talent_concentration",
	"edu_inmig_rate",
	"edu_outmig_rate",
	"bachelors_earnings_premium",
	"graduate_earnings_premium",
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// StatesResponse is the JSON response for the state listing.
type StatesResponse struct {
	Count               int             `json:"count"`
	MedianRate          acs.Num         `json:"nat_median_rate"`
	MedianConcentration acs.Num         `json:"nat_median_conc"`
	States              []master.Record `json:"states"`
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	desc := true
	switch q.Get("order") {
	case "", "desc":
	case "asc":
		desc = false
	default:
		writeError(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	var (
		segment    master.Segment
		hasSegment bool
	)
	if label := q.Get("segment"); label != "" {
		seg, err := master.ParseSegment(label)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		segment, hasSegment = seg, true
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	t, ok := s.table(w, r)
	if !ok {
		return
	}

	records := t.Records
	if field := q.Get("sort"); field != "" {
		sorted, err := report.Sort(records, field, desc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		records = sorted
	}

	out := make([]master.Record, 0, len(records))
	for i := range records {
		if hasSegment && records[i].Segment != segment {
			continue
		}
		out = append(out, records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, StatesResponse{
		Count:               len(out),
		MedianRate:          t.MedianRate,
		MedianConcentration: t.MedianConcentration,
		States:              out,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "state")
	if name == "" {
		writeError(w, http.StatusBadRequest, "state is required")
		return
	}

	t, ok := s.table(w, r)
	if !ok {
		return
	}

	rec := t.Find(name)
	if rec == nil {
		for i := range t.Records {
			if strings.EqualFold(t.Records[i].State, name) {
				rec = &t.Records[i]
				break
			}
		}
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "No data for state "+name)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.BySegment(t.Records))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	top := 5
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "top must be a non-negative integer")
			return
		}
		top = n
	}

	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.Summarize(t, top))
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, y := q.Get("x"), q.Get("y")
	if x == "" {
		x = "median_earnings_bachelors"
	}
	if y == "" {
		y = "net_migration_rate"
	}

	t, ok := s.table(w, r)
	if !ok {
		return
	}

	fit, err := report.Trend(t.Records, x, y)
	switch {
	case errors.Is(err, report.ErrUnknownMetric):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeJSON(w, http.StatusOK, fit)
	}
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	states := splitList(q.Get("states"))
	if len(states) == 0 {
		writeError(w, http.StatusBadRequest, "states is required")
		return
	}
	metrics := splitList(q.Get("metrics"))
	if len(metrics) == 0 {
		metrics = defaultCompareMetrics
	}

	t, ok := s.table(w, r)
	if !ok {
		return
	}

	cmp, err := report.Compare(t.Records, states, metrics)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := s.store.ListSnapshots(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []storage.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}
