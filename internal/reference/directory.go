// Package reference looks up truck crews and shipper routes in the reference
// workbook (reference_data.xlsx).
//
// The workbook's INFO sheet carries a header row naming its columns (TRUCK,
// DRIVER, HELPER 1, HELPER 2, KEYWORDS, ORIGINS, FULL, FROM, TO). Older copies
// have no header and list truck, driver and both helpers in columns A to D;
// both layouts are read. Parsed entries are cached until the TTL passes or
// Invalidate is called.
package reference

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"waybill/internal/logger"
	"waybill/pkg/models"
)

// InfoSheet is the preferred worksheet name.
const InfoSheet = "INFO"

const entriesKey = "entries"

// Header names of the INFO sheet.
const (
	HeaderTruck    = "TRUCK"
	HeaderDriver   = "DRIVER"
	HeaderHelper1  = "HELPER 1"
	HeaderHelper2  = "HELPER 2"
	HeaderKeywords = "KEYWORDS"
	HeaderOrigins  = "ORIGINS"
	HeaderFull     = "FULL"
	HeaderFrom     = "FROM"
	HeaderTo       = "TO"
)

// Directory is a cached view of the reference workbook.
type Directory struct {
	path  string
	cache *cache.Cache
	log   zerolog.Logger
}

// NewDirectory creates a directory over the workbook at path. A ttl of zero
// or less caches until Invalidate.
func NewDirectory(path string, ttl time.Duration) *Directory {
	expiration, cleanup := ttl, 2*ttl
	if ttl <= 0 {
		expiration, cleanup = cache.NoExpiration, 0
	}
	return &Directory{
		path:  path,
		cache: cache.New(expiration, cleanup),
		log:   logger.WithComponent("reference"),
	}
}

// Entries returns every fleet entry in sheet order. A missing workbook yields
// no entries and is looked for again on the next call.
func (d *Directory) Entries() ([]models.FleetEntry, error) {
	if v, ok := d.cache.Get(entriesKey); ok {
		return v.([]models.FleetEntry), nil
	}

	entries, found, err := d.load()
	if err != nil {
		return nil, err
	}
	if found {
		d.cache.SetDefault(entriesKey, entries)
	}
	return entries, nil
}

// Invalidate drops the cached entries so the next lookup rereads the workbook.
func (d *Directory) Invalidate() {
	d.cache.Flush()
	d.log.Debug().Str("path", d.path).Msg("Reference cache invalidated")
}

// LookupPlate returns every entry whose truck matches plate, ignoring case
// and spaces.
func (d *Directory) LookupPlate(plate string) ([]models.FleetEntry, error) {
	want := NormalizePlate(plate)
	if want == "" {
		return nil, nil
	}

	entries, err := d.Entries()
	if err != nil {
		return nil, err
	}

	var matches []models.FleetEntry
	for _, e := range entries {
		if NormalizePlate(e.Truck) == want {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// LookupOrigin returns the first entry whose keywords, origins, shipper or
// FROM location mention keyword.
func (d *Directory) LookupOrigin(keyword string) (*models.FleetEntry, bool, error) {
	want := strings.ToUpper(strings.TrimSpace(keyword))
	if want == "" {
		return nil, false, nil
	}

	entries, err := d.Entries()
	if err != nil {
		return nil, false, err
	}

	for i := range entries {
		if strings.Contains(searchText(entries[i]), want) {
			e := entries[i]
			return &e, true, nil
		}
	}
	return nil, false, nil
}

// NormalizePlate strips spaces and upper-cases a plate number.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(plate), " ", ""))
}

func searchText(e models.FleetEntry) string {
	return strings.ToUpper(strings.TrimSpace(strings.Join([]string{e.Keywords, e.Origins, e.Shipper, e.From}, " ")))
}

// load reads the workbook. found is false when the file does not exist.
func (d *Directory) load() (entries []models.FleetEntry, found bool, err error) {
	const op = "load"

	if _, err := os.Stat(d.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.log.Warn().Str("path", d.path).Msg("Reference workbook not found, lookups will find nothing")
			return []models.FleetEntry{}, false, nil
		}
		return nil, false, fmt.Errorf("%s: stat reference workbook: %w", op, err)
	}

	f, err := excelize.OpenFile(d.path)
	if err != nil {
		return nil, false, fmt.Errorf("%s: open reference workbook: %w", op, err)
	}
	defer f.Close()

	sheet := InfoSheet
	if idx, err := f.GetSheetIndex(InfoSheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, false, fmt.Errorf("%s: read sheet %q: %w", op, sheet, err)
	}

	entries = parseRows(rows)
	d.log.Info().
		Str("path", d.path).
		Str("sheet", sheet).
		Int("entries", len(entries)).
		Msg("Loaded reference data")

	return entries, true, nil
}

// parseRows converts sheet rows into entries. Without a TRUCK header the
// first four columns are read positionally.
func parseRows(rows [][]string) []models.FleetEntry {
	cols := map[string]int{
		HeaderTruck:   0,
		HeaderDriver:  1,
		HeaderHelper1: 2,
		HeaderHelper2: 3,
	}
	start := 0

	for i, row := range rows {
		found := headerColumns(row)
		if _, ok := found[HeaderTruck]; ok {
			cols, start = found, i+1
			break
		}
	}

	get := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	entries := make([]models.FleetEntry, 0, len(rows))
	for _, row := range rows[start:] {
		e := models.FleetEntry{
			Truck:    get(row, HeaderTruck),
			Driver:   get(row, HeaderDriver),
			Helper1:  get(row, HeaderHelper1),
			Helper2:  get(row, HeaderHelper2),
			Keywords: get(row, HeaderKeywords),
			Origins:  get(row, HeaderOrigins),
			Shipper:  get(row, HeaderFull),
			From:     get(row, HeaderFrom),
			To:       get(row, HeaderTo),
		}
		if e == (models.FleetEntry{}) {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func headerColumns(row []string) map[string]int {
	cols := make(map[string]int, len(row))
	for i, cell := range row {
		name := strings.ToUpper(strings.TrimSpace(cell))
		if name == "" {
			continue
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}
