// Package ingest holds what the per-source ingesters share.
package ingest

import "fmt"

// Result summarizes one ingestion call.
// Degraded is set when an upstream fetch failed and the call returned without writing.
type Result struct {
	Source   string `json:"source"`
	Fetched  int    `json:"fetched"`  // records returned by the upstream source
	Parsed   int    `json:"parsed"`   // rows that survived parsing and normalization
	Inserted int    `json:"inserted"` // rows written to the store
	Degraded bool   `json:"degraded,omitempty"`
}

// Add accumulates another result into r.
func (r *Result) Add(o *Result) {
	if o == nil {
		return
	}
	r.Fetched += o.Fetched
	r.Parsed += o.Parsed
	r.Inserted += o.Inserted
	r.Degraded = r.Degraded || o.Degraded
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: fetched=%d parsed=%d inserted=%d degraded=%v",
		r.Source, r.Fetched, r.Parsed, r.Inserted, r.Degraded)
}
