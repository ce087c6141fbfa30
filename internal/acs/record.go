package acs

// StateRecord is one row of a single source table.
type StateRecord struct {
	State  string         `json:"state"`
	FIPS   string         `json:"fips,omitempty"`
	Fields map[string]Num `json:"fields"`
}

// Get returns the named field, or null if absent.
func (r StateRecord) Get(name string) Num {
	if r.Fields == nil {
		return Null
	}
	return r.Fields[name]
}

// Index maps state name to record. Later duplicates replace earlier ones.
func Index(records []StateRecord) map[string]StateRecord {
	idx := make(map[string]StateRecord, len(records))
	for _, r := range records {
		idx[r.State] = r
	}
	return idx
}
