package models

import (
	"reflect"
	"testing"
	"time"
)

func TestFormattedReferences(t *testing.T) {
	tests := []struct {
		refs []string
		want string
	}{
		{nil, ""},
		{[]string{"VA1"}, "VA1"},
		{[]string{"VA1", "VB2", "V3"}, "VA1/VB2/V3"},
		{[]string{"VA1", "VB2", "V3", "V4"}, "VA1/VB2/V3…"},
	}
	for _, tt := range tests {
		if got := (Trip{ReferenceNos: tt.refs}).FormattedReferences(); got != tt.want {
			t.Errorf("FormattedReferences(%v) = %q, want %q", tt.refs, got, tt.want)
		}
	}
}

func TestFormattedSeals(t *testing.T) {
	trip := Trip{SealNos: []string{"111111", "222222", "333333"}}
	if got := trip.FormattedSeals(); got != "111111/222222" {
		t.Fatalf("FormattedSeals = %q", got)
	}
}

func TestMissingFields(t *testing.T) {
	d := TicketData{TripTicket: "123456", PlateNo: "ABC-1234"}
	if got := d.MissingFields(); !reflect.DeepEqual(got, []string{"delivery_date", "origin"}) {
		t.Fatalf("MissingFields = %v", got)
	}
}

func TestClaimed(t *testing.T) {
	rec := WaybillRecord{Number: "100100", Row: 7}
	if rec.Claimed() {
		t.Fatal("new record reported claimed")
	}
	now := time.Now()
	rec.ClaimedAt = &now
	if !rec.Claimed() {
		t.Fatal("record with timestamp reported unclaimed")
	}
}
