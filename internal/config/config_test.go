package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"LEDGER_BACKEND", "LEDGER_PATH", "LEDGER_WORKSHEET", "LEDGER_START_ROW",
	"LEDGER_SHEET_URL", "LEDGER_WRITE_ATTEMPTS", "LEDGER_WRITE_DELAY",
	"INDEX_DIR", "REFERENCE_PATH", "REFERENCE_CACHE_TTL", "ORIGIN_KEYWORDS",
	"OPENAI_API_KEY", "OPENAI_MODEL",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_TIME_FORMAT", "LOG_OUTPUT",
}

// clearEnv blanks every variable Load reads; an empty value means unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LedgerBackend != BackendXLSX {
		t.Errorf("LedgerBackend = %q", cfg.LedgerBackend)
	}
	if cfg.LedgerPath != filepath.Join("Database", "WAYBILL RECORD.xlsx") {
		t.Errorf("LedgerPath = %q", cfg.LedgerPath)
	}
	if cfg.LedgerStartRow != 7 || cfg.LedgerWriteAttempts != 5 || cfg.LedgerWriteDelay != time.Second {
		t.Errorf("ledger settings = %d, %d, %v", cfg.LedgerStartRow, cfg.LedgerWriteAttempts, cfg.LedgerWriteDelay)
	}
	if cfg.IndexJSONPath() != filepath.Join("Database", "waybills.json") {
		t.Errorf("IndexJSONPath = %q", cfg.IndexJSONPath())
	}
	if cfg.IndexCSVPath() != filepath.Join("Database", "waybills.csv") {
		t.Errorf("IndexCSVPath = %q", cfg.IndexCSVPath())
	}
	if !reflect.DeepEqual(cfg.OriginKeywords, DefaultOriginKeywords) {
		t.Errorf("OriginKeywords = %v", cfg.OriginKeywords)
	}

	lc := cfg.GetLoggerConfig()
	if lc.Level != "info" || lc.Format != "console" || lc.Output != "stderr" {
		t.Errorf("logger config = %+v", lc)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER_BACKEND", "Sheets")
	t.Setenv("LEDGER_SHEET_URL", "https://docs.google.com/spreadsheets/d/abc123/edit")
	t.Setenv("LEDGER_START_ROW", " 10 ")
	t.Setenv("LEDGER_WRITE_DELAY", "250ms")
	t.Setenv("INDEX_DIR", "/var/lib/waybill")
	t.Setenv("ORIGIN_KEYWORDS", " BB5, ,JENTEC ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LedgerBackend != BackendSheets {
		t.Errorf("LedgerBackend = %q", cfg.LedgerBackend)
	}
	if cfg.LedgerStartRow != 10 || cfg.LedgerWriteDelay != 250*time.Millisecond {
		t.Errorf("ledger settings = %d, %v", cfg.LedgerStartRow, cfg.LedgerWriteDelay)
	}
	if cfg.IndexJSONPath() != filepath.Join("/var/lib/waybill", "waybills.json") {
		t.Errorf("IndexJSONPath = %q", cfg.IndexJSONPath())
	}
	if !reflect.DeepEqual(cfg.OriginKeywords, []string{"BB5", "JENTEC"}) {
		t.Errorf("OriginKeywords = %v", cfg.OriginKeywords)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"LEDGER_BACKEND": "csv"}, "LEDGER_BACKEND"},
		{"sheets without url", map[string]string{"LEDGER_BACKEND": "sheets"}, "LEDGER_SHEET_URL"},
		{"bad start row", map[string]string{"LEDGER_START_ROW": "seven"}, "LEDGER_START_ROW"},
		{"zero attempts", map[string]string{"LEDGER_WRITE_ATTEMPTS": "0"}, "LEDGER_WRITE_ATTEMPTS"},
		{"bad delay", map[string]string{"LEDGER_WRITE_DELAY": "soon"}, "LEDGER_WRITE_DELAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
