package models

import (
	"strings"
	"time"
)

// Trip is one validated trip keyed against a waybill.
type Trip struct {
	WaybillNo    string
	TripTicket   string
	Date         time.Time
	PlateNo      string
	Origin       string
	DriverName   string
	Helper1      string
	Helper2      string
	TotalBlocks  int
	ReferenceNos []string
	SealNos      []string
}

// TripDateLayout is the date layout operators key trips in (mm-dd-yyyy).
const TripDateLayout = "01-02-2006"

// FormattedReferences joins at most three reference numbers with "/" and
// marks the rest with an ellipsis.
func (t Trip) FormattedReferences() string {
	if len(t.ReferenceNos) > 3 {
		return strings.Join(t.ReferenceNos[:3], "/") + "…"
	}
	return strings.Join(t.ReferenceNos, "/")
}

// FormattedSeals joins at most two seal numbers with "/".
func (t Trip) FormattedSeals() string {
	if len(t.SealNos) > 2 {
		return strings.Join(t.SealNos[:2], "/")
	}
	return strings.Join(t.SealNos, "/")
}
