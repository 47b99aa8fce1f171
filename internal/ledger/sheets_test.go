package ledger

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"waybill/internal/sheets"
	"waybill/pkg/models"
)

type fakeSheetClient struct {
	values    map[string][][]interface{}
	updates   [][]sheets.CellUpdate
	updateErr error
	calls     int
}

func (f *fakeSheetClient) ReadRange(_ context.Context, rangeSpec string) ([][]interface{}, error) {
	v, ok := f.values[rangeSpec]
	if !ok {
		return nil, errors.New("unexpected range " + rangeSpec)
	}
	return v, nil
}

func (f *fakeSheetClient) UpdateCells(_ context.Context, updates []sheets.CellUpdate) error {
	f.calls++
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, updates)
	return nil
}

func newFakeLedger() *fakeSheetClient {
	return &fakeSheetClient{
		values: map[string][][]interface{}{
			"'Waybills'!A7:C": {
				{"100100"},
				{"100101", "", models.ClaimMarker},
				{"bad"},
				{100102.0, "", "  "},
			},
			"'Waybills'!C7:C": {
				{},
				{models.ClaimMarker},
				{},
				{"  "},
			},
		},
	}
}

func TestSheetsScan(t *testing.T) {
	s := NewSheetsWithClient(newFakeLedger(), "Waybills", testOptions())

	records, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []models.WaybillRecord{
		{Number: "100100", Row: 7},
		{Number: "100102", Row: 10},
	}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("Scan = %+v, want %+v", records, want)
	}
}

func TestSheetsApplyClaimsSkipsMarkedRows(t *testing.T) {
	client := newFakeLedger()
	s := NewSheetsWithClient(client, "Waybills", testOptions())

	written, err := s.ApplyClaims(context.Background(), []models.WaybillRecord{
		{Number: "100100", Row: 7},
		{Number: "100101", Row: 8},
		{Number: "100102", Row: 10},
	})
	if err != nil {
		t.Fatalf("ApplyClaims: %v", err)
	}
	if written != 2 {
		t.Fatalf("ApplyClaims wrote %d cells, want 2", written)
	}

	want := []sheets.CellUpdate{
		{Range: "'Waybills'!C7", Value: models.ClaimMarker},
		{Range: "'Waybills'!C10", Value: models.ClaimMarker},
	}
	if len(client.updates) != 1 || !reflect.DeepEqual(client.updates[0], want) {
		t.Fatalf("updates = %+v, want %+v", client.updates, want)
	}
}

func TestSheetsApplyTrip(t *testing.T) {
	client := newFakeLedger()
	s := NewSheetsWithClient(client, "Waybills", testOptions())

	err := s.ApplyTrip(context.Background(), models.WaybillRecord{Number: "100100", Row: 7}, models.Trip{
		TripTicket: "123456",
		DriverName: "Juan Dela Cruz",
		Origin:     "BB5",
	})
	if err != nil {
		t.Fatalf("ApplyTrip: %v", err)
	}
	if len(client.updates) != 1 {
		t.Fatalf("got %d update batches, want 1", len(client.updates))
	}

	got := map[string]interface{}{}
	for _, u := range client.updates[0] {
		got[u.Range] = u.Value
	}
	if got["'Waybills'!C7"] != models.ClaimMarker {
		t.Errorf("C7 = %v, want %s", got["'Waybills'!C7"], models.ClaimMarker)
	}
	if got["'Waybills'!E7"] != "123456" {
		t.Errorf("E7 = %v, want 123456", got["'Waybills'!E7"])
	}
	if got["'Waybills'!L7"] != "BB5" {
		t.Errorf("L7 = %v, want BB5", got["'Waybills'!L7"])
	}
}

func TestSheetsUpdateFailureIsTransient(t *testing.T) {
	client := newFakeLedger()
	client.updateErr = errors.New("googleapi: Error 503: backend unavailable")
	s := NewSheetsWithClient(client, "Waybills", testOptions())

	err := s.ApplyClaim(context.Background(), models.WaybillRecord{Number: "100100", Row: 7})
	if !errors.Is(err, ErrTransientWriteFailure) {
		t.Fatalf("ApplyClaim error = %v, want ErrTransientWriteFailure", err)
	}
	if client.calls != 3 {
		t.Fatalf("UpdateCells called %d times, want 3", client.calls)
	}
	if !strings.Contains(err.Error(), "backend unavailable") {
		t.Fatalf("error %q does not carry the last failure", err)
	}
}

func TestSheetsRejectsRowsAboveStart(t *testing.T) {
	s := NewSheetsWithClient(newFakeLedger(), "Waybills", testOptions())

	err := s.ApplyClaim(context.Background(), models.WaybillRecord{Number: "100100", Row: 3})
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("ApplyClaim error = %v, want ErrInvalidRow", err)
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Bob's Sheet"); got != "'Bob''s Sheet'" {
		t.Fatalf("quoteSheet = %q", got)
	}
}
