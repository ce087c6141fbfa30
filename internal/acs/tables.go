package acs

import "strings"

// NameCode is the census variable carrying the geography name.
const NameCode = "NAME"

// Semantic field names shared by the tables and the master record.
const (
	PopAge25Plus          = "pop_25plus"
	InterstateInTotal     = "interstate_in_total"
	InterstateInBachelors = "interstate_in_bachelors"
	InterstateInGraduate  = "interstate_in_graduate"

	InterstateOutTotal     = "interstate_out_total"
	InterstateOutBachelors = "interstate_out_bachelors"
	InterstateOutGraduate  = "interstate_out_graduate"

	EducPopTotal      = "educ_pop_total"
	StockBachelors    = "stock_bachelors"
	StockMasters      = "stock_masters"
	StockProfessional = "stock_professional"
	StockDoctorate    = "stock_doctorate"

	MedianEarningsTotal     = "median_earnings_total"
	MedianEarningsBachelors = "median_earnings_bachelors"
	MedianEarningsGraduate  = "median_earnings_graduate"
)

// Field maps one source variable code to its semantic name.
type Field struct {
	Code string
	Name string
}

// Table describes one ACS detail table and the variables pulled from it.
type Table struct {
	ID          string
	Description string
	Fields      []Field
}

// Codes returns the ordered variable codes to request, NAME first.
func (t Table) Codes() []string {
	codes := make([]string, 0, len(t.Fields)+1)
	codes = append(codes, NameCode)
	for _, f := range t.Fields {
		codes = append(codes, f.Code)
	}
	return codes
}

// CacheKey identifies the table and its exact variable-code set.
func (t Table) CacheKey() string {
	return t.ID + ":" + strings.Join(t.Codes(), ",")
}

// InMigration is B07009: geographic mobility by educational attainment, current residence.
var InMigration = Table{
	ID:          "B07009",
	Description: "in-migration",
	Fields: []Field{
		{Code: "B07009_001E", Name: PopAge25Plus},
		{Code: "B07009_025E", Name: InterstateInTotal},
		{Code: "B07009_029E", Name: InterstateInBachelors},
		{Code: "B07009_030E", Name: InterstateInGraduate},
	},
}

// OutMigration is B07409: mobility by educational attainment, residence one year ago.
// Used as a proxy for departures; it is not the exact complement of B07009.
var OutMigration = Table{
	ID:          "B07409",
	Description: "out-migration proxy",
	Fields: []Field{
		{Code: "B07409_025E", Name: InterstateOutTotal},
		{Code: "B07409_029E", Name: InterstateOutBachelors},
		{Code: "B07409_030E", Name: InterstateOutGraduate},
	},
}

// EducationStock is B15003: educational attainment for the population 25 and over.
var EducationStock = Table{
	ID:          "B15003",
	Description: "education stock",
	Fields: []Field{
		{Code: "B15003_001E", Name: EducPopTotal},
		{Code: "B15003_022E", Name: StockBachelors},
		{Code: "B15003_023E", Name: StockMasters},
		{Code: "B15003_024E", Name: StockProfessional},
		{Code: "B15003_025E", Name: StockDoctorate},
	},
}

// Earnings is B20004: median earnings by educational attainment, population 25 and over.
var Earnings = Table{
	ID:          "B20004",
	Description: "earnings",
	Fields: []Field{
		{Code: "B20004_001E", Name: MedianEarningsTotal},
		{Code: "B20004_005E", Name: MedianEarningsBachelors},
		{Code: "B20004_006E", Name: MedianEarningsGraduate},
	},
}

// Tables lists the four source tables, anchor first.
func Tables() []Table {
	return []Table{InMigration, OutMigration, EducationStock, Earnings}
}
