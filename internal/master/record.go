// Package master joins the four ACS tables into one record per state and
// derives the migration, stock, earnings and segmentation metrics.
package master

import (
	"sort"

	"braindrain/internal/acs"
)

// Record is one state in the assembled master table. Every numeric field may
// be null. Net migration is a directional estimate: the out-migration table
// is a prior-residence proxy, not an exact complement of in-migration.
type Record struct {
	State string `json:"state"`
	FIPS  string `json:"fips,omitempty"`

	// B07009
	Pop25Plus             acs.Num `json:"pop_25plus"`
	InterstateInTotal     acs.Num `json:"interstate_in_total"`
	InterstateInBachelors acs.Num `json:"interstate_in_bachelors"`
	InterstateInGraduate  acs.Num `json:"interstate_in_graduate"`

	// B07409
	InterstateOutTotal     acs.Num `json:"interstate_out_total"`
	InterstateOutBachelors acs.Num `json:"interstate_out_bachelors"`
	InterstateOutGraduate  acs.Num `json:"interstate_out_graduate"`

	// B15003
	EducPopTotal      acs.Num `json:"educ_pop_total"`
	StockBachelors    acs.Num `json:"stock_bachelors"`
	StockMasters      acs.Num `json:"stock_masters"`
	StockProfessional acs.Num `json:"stock_professional"`
	StockDoctorate    acs.Num `json:"stock_doctorate"`

	// B20004
	MedianEarningsTotal     acs.Num `json:"median_earnings_total"`
	MedianEarningsBachelors acs.Num `json:"median_earnings_bachelors"`
	MedianEarningsGraduate  acs.Num `json:"median_earnings_graduate"`

	// Derived.
	InterstateInEducated     acs.Num `json:"interstate_in_educated"`
	InterstateOutEducated    acs.Num `json:"interstate_out_educated"`
	StockGraduatePlus        acs.Num `json:"stock_graduate_plus"`
	StockEducatedTotal       acs.Num `json:"stock_educated_total"`
	EduInmigRate             acs.Num `json:"edu_inmig_rate"`
	EduOutmigRate            acs.Num `json:"edu_outmig_rate"`
	NetEducatedMigrants      acs.Num `json:"net_educated_migrants"`
	NetMigrationRate         acs.Num `json:"net_migration_rate"`
	InmigPctOfStock          acs.Num `json:"inmig_pct_of_stock"`
	OutmigPctOfStock         acs.Num `json:"outmig_pct_of_stock"`
	EduShareOfInmig          acs.Num `json:"edu_share_of_inmig"`
	EduShareOfOutmig         acs.Num `json:"edu_share_of_outmig"`
	TalentConcentration      acs.Num `json:"talent_concentration"`
	BachelorsEarningsPremium acs.Num `json:"bachelors_earnings_premium"`
	GraduateEarningsPremium  acs.Num `json:"graduate_earnings_premium"`

	Segment Segment `json:"segment"`
}

// Table is the assembled result: qualifying states plus the national
// medians used for segmentation.
type Table struct {
	Records             []Record `json:"records"`
	MedianRate          acs.Num  `json:"nat_median_rate"`
	MedianConcentration acs.Num  `json:"nat_median_conc"`
}

// Find returns the record for a state name, or nil.
func (t Table) Find(state string) *Record {
	for i := range t.Records {
		if t.Records[i].State == state {
			return &t.Records[i]
		}
	}
	return nil
}

var metrics = map[string]func(*Record) acs.Num{
	acs.PopAge25Plus:             func(r *Record) acs.Num { return r.Pop25Plus },
	acs.InterstateInTotal:        func(r *Record) acs.Num { return r.InterstateInTotal },
	acs.InterstateInBachelors:    func(r *Record) acs.Num { return r.InterstateInBachelors },
	acs.InterstateInGraduate:     func(r *Record) acs.Num { return r.InterstateInGraduate },
	acs.InterstateOutTotal:       func(r *Record) acs.Num { return r.InterstateOutTotal },
	acs.InterstateOutBachelors:   func(r *Record) acs.Num { return r.InterstateOutBachelors },
	acs.InterstateOutGraduate:    func(r *Record) acs.Num { return r.InterstateOutGraduate },
	acs.EducPopTotal:             func(r *Record) acs.Num { return r.EducPopTotal },
	acs.StockBachelors:           func(r *Record) acs.Num { return r.StockBachelors },
	acs.StockMasters:             func(r *Record) acs.Num { return r.StockMasters },
	acs.StockProfessional:        func(r *Record) acs.Num { return r.StockProfessional },
	acs.StockDoctorate:           func(r *Record) acs.Num { return r.StockDoctorate },
	acs.MedianEarningsTotal:      func(r *Record) acs.Num { return r.MedianEarningsTotal },
	acs.MedianEarningsBachelors:  func(r *Record) acs.Num { return r.MedianEarningsBachelors },
	acs.MedianEarningsGraduate:   func(r *Record) acs.Num { return r.MedianEarningsGraduate },
	"interstate_in_educated":     func(r *Record) acs.Num { return r.InterstateInEducated },
	"interstate_out_educated":    func(r *Record) acs.Num { return r.InterstateOutEducated },
	"stock_graduate_plus":        func(r *Record) acs.Num { return r.StockGraduatePlus },
	"stock_educated_total":       func(r *Record) acs.Num { return r.StockEducatedTotal },
	"edu_inmig_rate":             func(r *Record) acs.Num { return r.EduInmigRate },
	"edu_outmig_rate":            func(r *Record) acs.Num { return r.EduOutmigRate },
	"net_educated_migrants":      func(r *Record) acs.Num { return r.NetEducatedMigrants },
	"net_migration_rate":         func(r *Record) acs.Num { return r.NetMigrationRate },
	"inmig_pct_of_stock":         func(r *Record) acs.Num { return r.InmigPctOfStock },
	"outmig_pct_of_stock":        func(r *Record) acs.Num { return r.OutmigPctOfStock },
	"edu_share_of_inmig":         func(r *Record) acs.Num { return r.EduShareOfInmig },
	"edu_share_of_outmig":        func(r *Record) acs.Num { return r.EduShareOfOutmig },
	"talent_concentration":       func(r *Record) acs.Num { return r.TalentConcentration },
	"bachelors_earnings_premium": func(r *Record) acs.Num { return r.BachelorsEarningsPremium },
	"graduate_earnings_premium":  func(r *Record) acs.Num { return r.GraduateEarningsPremium },
}

// Metric returns a numeric field by its JSON name.
func (r *Record) Metric(name string) (acs.Num, bool) {
	fn, ok := metrics[name]
	if !ok {
		return acs.Null, false
	}
	return fn(r), true
}

// MetricNames lists every numeric field name, sorted.
func MetricNames() []string {
	names := make([]string, 0, len(metrics))
	for k := range metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
