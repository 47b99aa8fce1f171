package models

import "time"

// ClaimMarker is the value written into the ledger's claim column once a
// waybill has been handed out.
const ClaimMarker = "TRANSFER"

// WaybillRecord is one eligible row of the waybill ledger.
type WaybillRecord struct {
	Number    string     `json:"waybill_no"` // All digits, unique within the index
	Row       int        `json:"row"`        // 1-based ledger row the claim marker is written to
	ClaimedAt *time.Time `json:"timestamp"`  // nil while unclaimed
}

// Claimed reports whether the record has been handed out.
func (r WaybillRecord) Claimed() bool {
	return r.ClaimedAt != nil
}
