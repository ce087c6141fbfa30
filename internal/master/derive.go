package master

import "braindrain/internal/acs"

// Join left-joins the out-migration, stock and earnings tables onto the
// in-migration anchor by state name. Anchor rows without pop_25plus are
// discarded first; every other anchor state is kept, in anchor order, and
// fields from a table with no matching state stay null. When a name repeats
// within a table the later row wins.
func Join(in, out, stock, earnings []acs.StateRecord) []Record {
	outIdx := acs.Index(out)
	stockIdx := acs.Index(stock)
	earnIdx := acs.Index(earnings)

	records := make([]Record, 0, len(in))
	pos := make(map[string]int, len(in))

	for _, a := range in {
		if !a.Get(acs.PopAge25Plus).Valid() {
			continue
		}
		o := outIdx[a.State]
		s := stockIdx[a.State]
		e := earnIdx[a.State]

		r := Record{
			State: a.State,
			FIPS:  a.FIPS,

			Pop25Plus:             a.Get(acs.PopAge25Plus),
			InterstateInTotal:     a.Get(acs.InterstateInTotal),
			InterstateInBachelors: a.Get(acs.InterstateInBachelors),
			InterstateInGraduate:  a.Get(acs.InterstateInGraduate),

			InterstateOutTotal:     o.Get(acs.InterstateOutTotal),
			InterstateOutBachelors: o.Get(acs.InterstateOutBachelors),
			InterstateOutGraduate:  o.Get(acs.InterstateOutGraduate),

			EducPopTotal:      s.Get(acs.EducPopTotal),
			StockBachelors:    s.Get(acs.StockBachelors),
			StockMasters:      s.Get(acs.StockMasters),
			StockProfessional: s.Get(acs.StockProfessional),
			StockDoctorate:    s.Get(acs.StockDoctorate),

			MedianEarningsTotal:     e.Get(acs.MedianEarningsTotal),
			MedianEarningsBachelors: e.Get(acs.MedianEarningsBachelors),
			MedianEarningsGraduate:  e.Get(acs.MedianEarningsGraduate),
		}
		if r.FIPS == "" {
			r.FIPS = s.FIPS
		}

		if i, dup := pos[a.State]; dup {
			records[i] = r
			continue
		}
		pos[a.State] = len(records)
		records = append(records, r)
	}
	return records
}

// Derive fills the derived fields of r from its raw fields. Later fields
// build on earlier ones, so the order below matters.
func Derive(r *Record) {
	r.InterstateInEducated = r.InterstateInBachelors.Add(r.InterstateInGraduate)
	r.InterstateOutEducated = r.InterstateOutBachelors.Add(r.InterstateOutGraduate)
	r.StockGraduatePlus = acs.Sum(r.StockMasters, r.StockProfessional, r.StockDoctorate)
	r.StockEducatedTotal = r.StockBachelors.Add(r.StockGraduatePlus)

	r.EduInmigRate = r.InterstateInEducated.Div(r.Pop25Plus).Scale(1000)
	r.EduOutmigRate = r.InterstateOutEducated.Div(r.Pop25Plus).Scale(1000)
	r.NetEducatedMigrants = r.InterstateInEducated.Sub(r.InterstateOutEducated)
	r.NetMigrationRate = r.EduInmigRate.Sub(r.EduOutmigRate)

	r.InmigPctOfStock = r.InterstateInEducated.Div(r.StockEducatedTotal).Scale(100)
	r.OutmigPctOfStock = r.InterstateOutEducated.Div(r.StockEducatedTotal).Scale(100)

	r.EduShareOfInmig = r.InterstateInEducated.Div(r.InterstateInTotal).Scale(100)
	r.EduShareOfOutmig = r.InterstateOutEducated.Div(r.InterstateOutTotal).Scale(100)

	r.TalentConcentration = r.StockEducatedTotal.Div(r.EducPopTotal).Scale(100)

	r.BachelorsEarningsPremium = r.MedianEarningsBachelors.Sub(r.MedianEarningsTotal)
	r.GraduateEarningsPremium = r.MedianEarningsGraduate.Sub(r.MedianEarningsTotal)
}

// Medians returns the national medians of net_migration_rate and
// talent_concentration over all records, nulls excluded.
func Medians(records []Record) (rate, concentration acs.Num) {
	rates := make([]acs.Num, len(records))
	concs := make([]acs.Num, len(records))
	for i := range records {
		rates[i] = records[i].NetMigrationRate
		concs[i] = records[i].TalentConcentration
	}
	return Median(rates), Median(concs)
}

// Qualifies reports whether r has the denominators needed for classification.
func Qualifies(r *Record) bool {
	return r.Pop25Plus.Valid() && r.StockEducatedTotal.Valid()
}

// Build runs the whole pipeline over already-fetched tables: join, derive,
// medians, segment, drop.
func Build(in, out, stock, earnings []acs.StateRecord) Table {
	records := Join(in, out, stock, earnings)
	for i := range records {
		Derive(&records[i])
	}

	medRate, medConc := Medians(records)

	kept := records[:0]
	for i := range records {
		r := records[i]
		r.Segment = Classify(r.NetMigrationRate, r.TalentConcentration, medRate, medConc)
		if !Qualifies(&r) {
			continue
		}
		kept = append(kept, r)
	}

	return Table{
		Records:             kept,
		MedianRate:          medRate,
		MedianConcentration: medConc,
	}
}
