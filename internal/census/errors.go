package census

import "fmt"

// DataSourceError reports that a table could not be fetched from the
// census API: network failure, non-2xx status or malformed body.
type DataSourceError struct {
	Table string // ACS table ID, e.g. "B07009".
	Op    string // "request", "status", "decode".
	Err   error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("census %s %s: %v", e.Table, e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }
