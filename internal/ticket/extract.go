// Package ticket pulls trip-ticket fields out of OCR text.
//
// Extraction is pattern based and tuned to the shipper's printed ticket.
// Fields it cannot find are left empty for Enrich (reference data) or a
// Completer (chat model) to fill.
package ticket

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"waybill/pkg/models"
)

var (
	tripTicketPattern = regexp.MustCompile(`(?is)TRIP.*CKET.*?(\d{5,6})`)
	sealPattern       = regexp.MustCompile(`(?is)SEAL.*?(\d{5,6})`)
	blocksPattern     = regexp.MustCompile(`\b(1\d{2}|7\d{2})\b`)
	referencePattern  = regexp.MustCompile(`\b(V[A-Z]?\d+[A-Z]?)\b`)
	platePattern      = regexp.MustCompile(`([A-Z]{3}[- ]?\d{3,4})`)
	datePattern       = regexp.MustCompile(`(?i)DATE\D{0,20}?(\d{1,2})[-/](\d{1,2})[-/](\d{4})`)
)

// Extract reads ticket fields from raw OCR text. origins lists the shipper
// keywords to look for; the first one present wins.
func Extract(text string, origins []string) models.TicketData {
	var d models.TicketData

	if m := tripTicketPattern.FindStringSubmatch(text); m != nil {
		d.TripTicket = strings.TrimSpace(m[1])
	}

	if m := sealPattern.FindStringSubmatch(text); m != nil {
		d.SealNos = append(d.SealNos, strings.TrimSpace(m[1]))
	}

	for _, m := range blocksPattern.FindAllStringSubmatch(text, -1) {
		n, _ := strconv.Atoi(m[1])
		d.TotalBlocks += n
	}

	for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
		d.ReferenceNos = append(d.ReferenceNos, m[1])
	}

	if m := platePattern.FindStringSubmatch(text); m != nil {
		d.PlateNo = strings.ReplaceAll(m[1], " ", "-")
	}

	if m := datePattern.FindStringSubmatch(text); m != nil {
		d.DeliveryDate = normalizeDate(m[1], m[2], m[3])
	}

	upper := strings.ToUpper(text)
	for _, origin := range origins {
		if origin != "" && strings.Contains(upper, strings.ToUpper(origin)) {
			d.Origin = origin
			break
		}
	}

	return d
}

// normalizeDate returns month-day-year parts as mm-dd-yyyy, or "" when they
// do not form a calendar date.
func normalizeDate(month, day, year string) string {
	t, err := time.Parse("1-2-2006", month+"-"+day+"-"+year)
	if err != nil {
		return ""
	}
	return t.Format(models.TripDateLayout)
}
