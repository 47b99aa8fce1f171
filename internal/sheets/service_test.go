package sheets

import (
	"context"
	"errors"
	"testing"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-d_9xYz/edit#gid=0", "1AbC-d_9xYz", false},
		{"https://docs.google.com/spreadsheets/d/abc123", "abc123", false},
		{"https://example.com/waybills.xlsx", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ExtractSpreadsheetID(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractSpreadsheetID(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractSpreadsheetID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestNewSheetsServiceNeedsCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_CREDENTIALS", "")

	_, err := NewSheetsService(context.Background(), "https://docs.google.com/spreadsheets/d/abc123/edit")
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestNewSheetsServiceRejectsBadURL(t *testing.T) {
	if _, err := NewSheetsService(context.Background(), "not a sheet"); err == nil {
		t.Fatal("NewSheetsService accepted a non-Sheets URL")
	}
}
