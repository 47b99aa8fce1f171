package reference

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, path, sheet string, rows [][]interface{}) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		f.SetActiveSheet(idx)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}

func infoRows() [][]interface{} {
	return [][]interface{}{
		{"TRUCK", "DRIVER", "HELPER 1", "HELPER 2", "KEYWORDS", "ORIGINS", "FULL", "FROM", "TO"},
		{"ABC 1234", "Juan Dela Cruz", "Pedro Santos", "Jose Reyes", "JSI", "JSI LILOAN", "JSI Trading Corp", "Liloan", "Mandaue"},
		{"XYZ 987", "Ramon Cruz", "Ben Tan", "", "", "BB5", "BB5 Blocks Inc", "Consolacion", "Cebu"},
		{},
		{"abc1234", "Mario Lim", "", "", "", "", "", "", ""},
	}
}

func TestLookupPlate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference_data.xlsx")
	writeWorkbook(t, path, InfoSheet, infoRows())
	d := NewDirectory(path, time.Minute)

	matches, err := d.LookupPlate(" abc1234 ")
	if err != nil {
		t.Fatalf("LookupPlate: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("LookupPlate found %d entries, want 2", len(matches))
	}
	if matches[0].Driver != "Juan Dela Cruz" || matches[1].Driver != "Mario Lim" {
		t.Fatalf("LookupPlate = %+v", matches)
	}

	none, err := d.LookupPlate("QQQ 111")
	if err != nil || len(none) != 0 {
		t.Fatalf("LookupPlate(QQQ 111) = %+v, %v", none, err)
	}
}

func TestLookupOrigin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference_data.xlsx")
	writeWorkbook(t, path, InfoSheet, infoRows())
	d := NewDirectory(path, time.Minute)

	tests := []struct {
		keyword string
		truck   string
	}{
		{"bb5", "XYZ 987"},
		{"JSI LILOAN", "ABC 1234"},
		{"consolacion", "XYZ 987"},
		{"trading", "ABC 1234"},
	}
	for _, tt := range tests {
		entry, ok, err := d.LookupOrigin(tt.keyword)
		if err != nil {
			t.Fatalf("LookupOrigin(%q): %v", tt.keyword, err)
		}
		if !ok || entry.Truck != tt.truck {
			t.Errorf("LookupOrigin(%q) = %+v, %v; want truck %s", tt.keyword, entry, ok, tt.truck)
		}
	}

	if _, ok, _ := d.LookupOrigin("Mandaue"); ok {
		t.Error("LookupOrigin matched on the TO column")
	}
	if _, ok, _ := d.LookupOrigin("  "); ok {
		t.Error("blank keyword matched")
	}
}

func TestEntriesCachedUntilInvalidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference_data.xlsx")
	writeWorkbook(t, path, InfoSheet, infoRows())
	d := NewDirectory(path, 0)

	first, err := d.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("Entries = %d, want 3", len(first))
	}

	writeWorkbook(t, path, InfoSheet, infoRows()[:2])

	cached, err := d.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(cached) != 3 {
		t.Fatalf("Entries before Invalidate = %d, want cached 3", len(cached))
	}

	d.Invalidate()
	fresh, err := d.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("Entries after Invalidate = %d, want 1", len(fresh))
	}
}

func TestMissingWorkbookIsEmpty(t *testing.T) {
	d := NewDirectory(filepath.Join(t.TempDir(), "missing.xlsx"), time.Minute)

	entries, err := d.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Entries = %+v, want none", entries)
	}
}

func TestWorkbookAddedAfterMissIsRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference_data.xlsx")
	d := NewDirectory(path, time.Hour)

	if entries, err := d.Entries(); err != nil || len(entries) != 0 {
		t.Fatalf("Entries before workbook exists = %+v, %v", entries, err)
	}

	writeWorkbook(t, path, InfoSheet, infoRows())

	entries, err := d.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Entries after workbook added = %d, want 3 without Invalidate", len(entries))
	}
}

func TestHeaderlessSheetReadsFirstColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference_data.xlsx")
	writeWorkbook(t, path, "Sheet1", [][]interface{}{
		{"ABC 1234", "Juan Dela Cruz", "Pedro Santos", "Jose Reyes"},
		{"XYZ 987", "Ramon Cruz"},
	})
	d := NewDirectory(path, time.Minute)

	matches, err := d.LookupPlate("XYZ987")
	if err != nil {
		t.Fatalf("LookupPlate: %v", err)
	}
	if len(matches) != 1 || matches[0].Driver != "Ramon Cruz" || matches[0].Helper1 != "" {
		t.Fatalf("LookupPlate = %+v", matches)
	}
}

func TestNormalizePlate(t *testing.T) {
	if got := NormalizePlate(" abc 12 34 "); got != "ABC1234" {
		t.Fatalf("NormalizePlate = %q", got)
	}
}
