// Package report builds read-only views over an assembled master table:
// national summaries, rankings, trend fits and state comparisons.
package report

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"braindrain/internal/acs"
	"braindrain/internal/master"
)

// ErrUnknownMetric is returned for a field name the master record lacks.
var ErrUnknownMetric = errors.New("unknown metric")

// Summary is the national overview of one assembled table.
type Summary struct {
	States              int            `json:"states"`
	MedianRate          acs.Num        `json:"nat_median_rate"`
	MedianConcentration acs.Num        `json:"nat_median_conc"`
	MeanConcentration   acs.Num        `json:"nat_mean_conc"`
	NetEducatedMigrants acs.Num        `json:"net_educated_migrants_total"`
	Segments            map[string]int `json:"segments"`
	TopGainers          []Ranked       `json:"top_gainers"`
	TopLosers           []Ranked       `json:"top_losers"`
}

// Ranked is one state in a ranking.
type Ranked struct {
	State   string         `json:"state"`
	Value   acs.Num        `json:"value"`
	Segment master.Segment `json:"segment"`
}

// Summarize computes national figures and the topN gainers and losers by
// net educated migrants. A negative topN is treated as zero.
func Summarize(t master.Table, topN int) Summary {
	topN = max(topN, 0)
	s := Summary{
		States:              len(t.Records),
		MedianRate:          t.MedianRate,
		MedianConcentration: t.MedianConcentration,
		Segments:            make(map[string]int, 4),
	}
	for _, seg := range master.Segments() {
		s.Segments[seg.String()] = 0
	}

	var conc []float64
	net := make([]acs.Num, 0, len(t.Records))
	for i := range t.Records {
		r := &t.Records[i]
		s.Segments[r.Segment.String()]++
		if v, ok := r.TalentConcentration.Float(); ok {
			conc = append(conc, v)
		}
		if r.NetEducatedMigrants.Valid() {
			net = append(net, r.NetEducatedMigrants)
		}
	}
	if len(conc) > 0 {
		s.MeanConcentration = acs.Of(stat.Mean(conc, nil))
	}
	if len(net) > 0 {
		s.NetEducatedMigrants = acs.Sum(net...)
	}

	sorted, _ := Sort(t.Records, "net_educated_migrants", true)
	s.TopGainers = rank(sorted, "net_educated_migrants", topN, func(v float64) bool { return v > 0 })

	asc, _ := Sort(t.Records, "net_educated_migrants", false)
	s.TopLosers = rank(asc, "net_educated_migrants", topN, func(v float64) bool { return v < 0 })

	return s
}

func known(field string) bool {
	_, ok := (&master.Record{}).Metric(field)
	return ok
}

func rank(records []master.Record, field string, n int, keep func(float64) bool) []Ranked {
	out := make([]Ranked, 0, n)
	for i := range records {
		if len(out) >= n {
			break
		}
		v, _ := records[i].Metric(field)
		f, ok := v.Float()
		if !ok || !keep(f) {
			continue
		}
		out = append(out, Ranked{State: records[i].State, Value: v, Segment: records[i].Segment})
	}
	return out
}

// Sort returns a copy of records ordered by field. Nulls sort last in both
// directions; ties keep their input order.
func Sort(records []master.Record, field string, desc bool) ([]master.Record, error) {
	if !known(field) && field != "state" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, field)
	}

	out := make([]master.Record, len(records))
	copy(out, records)

	if field == "state" {
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return out[i].State > out[j].State
			}
			return out[i].State < out[j].State
		})
		return out, nil
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Metric(field)
		b, _ := out[j].Metric(field)
		av, aok := a.Float()
		bv, bok := b.Float()
		switch {
		case !aok:
			return false
		case !bok:
			return true
		case desc:
			return av > bv
		default:
			return av < bv
		}
	})
	return out, nil
}

// Fit is an ordinary least squares line y = Alpha + Beta*x.
type Fit struct {
	X           string  `json:"x"`
	Y           string  `json:"y"`
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	Correlation acs.Num `json:"r"`
	N           int     `json:"n"`
}

// Trend fits y on x across records where both are non-null.
func Trend(records []master.Record, x, y string) (Fit, error) {
	for _, f := range []string{x, y} {
		if !known(f) {
			return Fit{}, fmt.Errorf("%w: %s", ErrUnknownMetric, f)
		}
	}

	var xs, ys []float64
	for i := range records {
		xv, _ := records[i].Metric(x)
		yv, _ := records[i].Metric(y)
		xf, ok1 := xv.Float()
		yf, ok2 := yv.Float()
		if ok1 && ok2 {
			xs = append(xs, xf)
			ys = append(ys, yf)
		}
	}
	if len(xs) < 2 {
		return Fit{}, fmt.Errorf("trend %s~%s: need at least 2 points, have %d", y, x, len(xs))
	}
	if floats.Min(xs) == floats.Max(xs) {
		return Fit{}, fmt.Errorf("trend %s~%s: %s is constant", y, x, x)
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	return Fit{
		X:           x,
		Y:           y,
		Alpha:       alpha,
		Beta:        beta,
		Correlation: correlation(xs, ys),
		N:           len(xs),
	}, nil
}

// correlation is null when y is constant.
func correlation(xs, ys []float64) acs.Num {
	if floats.Min(ys) == floats.Max(ys) {
		return acs.Null
	}
	return acs.Of(stat.Correlation(xs, ys, nil))
}

// Comparison holds min-max normalised metrics for selected states.
type Comparison struct {
	Metrics []string                      `json:"metrics"`
	States  map[string]map[string]acs.Num `json:"states"`
}

// Compare scales each metric to [0, 1] using the min and max across all
// records, then reports the selected states. A constant metric scales to 0;
// a null stays null. Unknown state names are skipped.
func Compare(records []master.Record, states, metrics []string) (Comparison, error) {
	bounds := make(map[string][2]float64, len(metrics))
	for _, m := range metrics {
		if !known(m) {
			return Comparison{}, fmt.Errorf("%w: %s", ErrUnknownMetric, m)
		}
		var vals []float64
		for i := range records {
			v, _ := records[i].Metric(m)
			if f, ok := v.Float(); ok {
				vals = append(vals, f)
			}
		}
		if len(vals) > 0 {
			bounds[m] = [2]float64{floats.Min(vals), floats.Max(vals)}
		}
	}

	byName := make(map[string]*master.Record, len(records))
	for i := range records {
		byName[records[i].State] = &records[i]
	}

	cmp := Comparison{Metrics: metrics, States: make(map[string]map[string]acs.Num, len(states))}
	for _, name := range states {
		r, ok := byName[name]
		if !ok {
			continue
		}
		row := make(map[string]acs.Num, len(metrics))
		for _, m := range metrics {
			v, _ := r.Metric(m)
			b, has := bounds[m]
			f, ok := v.Float()
			switch {
			case !ok || !has:
				row[m] = acs.Null
			case b[1] == b[0]:
				row[m] = acs.Of(0)
			default:
				row[m] = acs.Of((f - b[0]) / (b[1] - b[0]))
			}
		}
		cmp.States[name] = row
	}
	return cmp, nil
}

// BySegment groups state names under each segment label, alphabetically.
func BySegment(records []master.Record) map[string][]string {
	out := make(map[string][]string, 4)
	for _, seg := range master.Segments() {
		out[seg.String()] = []string{}
	}
	for i := range records {
		label := records[i].Segment.String()
		out[label] = append(out[label], records[i].State)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}
