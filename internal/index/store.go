package index

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"waybill/pkg/models"
)

var csvHeader = []string{"waybill_no", "row", "timestamp"}

// load reads the JSON form. A missing file yields errNoIndex.
func (ix *Index) load() ([]models.WaybillRecord, error) {
	data, err := os.ReadFile(ix.jsonPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errNoIndex
		}
		return nil, fmt.Errorf("read index file: %w", err)
	}

	var records []models.WaybillRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, ix.jsonPath, err)
	}

	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if rec.Number == "" {
			return nil, fmt.Errorf("%w: record %d has no waybill number", ErrIndexCorrupt, i)
		}
		if _, dup := seen[rec.Number]; dup {
			return nil, fmt.Errorf("%w: waybill %s listed twice", ErrIndexCorrupt, rec.Number)
		}
		seen[rec.Number] = struct{}{}
	}

	return records, nil
}

// persist writes both forms. Each form goes to a temp file first and both
// are renamed only once both encoded cleanly.
func (ix *Index) persist(records []models.WaybillRecord) error {
	if records == nil {
		records = []models.WaybillRecord{}
	}

	jsonData, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	csvData, err := encodeCSV(records)
	if err != nil {
		return fmt.Errorf("encode index csv: %w", err)
	}

	jsonTmp := ix.jsonPath + ".tmp"
	csvTmp := ix.csvPath + ".tmp"
	if err := os.WriteFile(jsonTmp, jsonData, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.WriteFile(csvTmp, csvData, 0o644); err != nil {
		os.Remove(jsonTmp)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(jsonTmp, ix.jsonPath); err != nil {
		os.Remove(jsonTmp)
		os.Remove(csvTmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	if err := os.Rename(csvTmp, ix.csvPath); err != nil {
		os.Remove(csvTmp)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func encodeCSV(records []models.WaybillRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, rec := range records {
		ts := ""
		if rec.ClaimedAt != nil {
			ts = rec.ClaimedAt.Format(time.RFC3339Nano)
		}
		if err := w.Write([]string{rec.Number, strconv.Itoa(rec.Row), ts}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
