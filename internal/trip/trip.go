// Package trip validates the shipment details an operator keys in for a
// claimed waybill and plans a two-trip recording session.
package trip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"waybill/pkg/models"
)

// MaxTrips is the number of trips recorded per session (one printed sheet).
const MaxTrips = 2

// ErrNoWaybill is returned when a session needs a waybill number and none is
// available.
var ErrNoWaybill = errors.New("no unclaimed waybill available")

// Input is one trip as keyed in, before validation.
type Input struct {
	WaybillNo    string   `yaml:"waybill_no,omitempty"`
	TripTicket   string   `yaml:"trip_ticket"`
	Date         string   `yaml:"date"`
	PlateNo      string   `yaml:"plate_no"`
	Origin       string   `yaml:"origin"`
	DriverName   string   `yaml:"driver_name"`
	Helper1      string   `yaml:"helper1,omitempty"`
	Helper2      string   `yaml:"helper2,omitempty"`
	TotalBlocks  string   `yaml:"total_blocks,omitempty"`
	ReferenceNos []string `yaml:"reference_nos,omitempty"`
	SealNos      []string `yaml:"seal_nos,omitempty"`
}

// Session is the on-disk form of a recording session.
type Session struct {
	Trips []Input `yaml:"trips"`
}

// ValidationError reports the first invalid field of a trip.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("trip: %s %s", e.Field, e.Reason)
}

// Validate checks in and converts it to a Trip. Empty reference and seal
// entries are dropped.
func Validate(in Input) (models.Trip, error) {
	in = trimmed(in)

	required := []struct {
		field string
		value string
	}{
		{"waybill_no", in.WaybillNo},
		{"trip_ticket", in.TripTicket},
		{"date", in.Date},
		{"plate_no", in.PlateNo},
		{"origin", in.Origin},
		{"driver_name", in.DriverName},
	}
	for _, r := range required {
		if r.value == "" {
			return models.Trip{}, &ValidationError{Field: r.field, Reason: "is required"}
		}
	}

	if !digits(in.WaybillNo) {
		return models.Trip{}, &ValidationError{Field: "waybill_no", Reason: "must contain only digits"}
	}

	date, err := time.Parse(models.TripDateLayout, in.Date)
	if err != nil {
		return models.Trip{}, &ValidationError{Field: "date", Reason: "must be mm-dd-yyyy"}
	}

	blocks := 0
	if in.TotalBlocks != "" {
		blocks, err = strconv.Atoi(in.TotalBlocks)
		if err != nil {
			return models.Trip{}, &ValidationError{Field: "total_blocks", Reason: "must be an integer"}
		}
	}

	return models.Trip{
		WaybillNo:    in.WaybillNo,
		TripTicket:   in.TripTicket,
		Date:         date,
		PlateNo:      in.PlateNo,
		Origin:       in.Origin,
		DriverName:   in.DriverName,
		Helper1:      in.Helper1,
		Helper2:      in.Helper2,
		TotalBlocks:  blocks,
		ReferenceNos: nonEmpty(in.ReferenceNos),
		SealNos:      nonEmpty(in.SealNos),
	}, nil
}

// PlanSession fills in the waybill numbers of a session. Trip 1 defaults to
// next, the next unclaimed waybill; trip 2 defaults to the number after
// trip 1's.
func PlanSession(inputs []Input, next string) ([]Input, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("session has no trips")
	}
	if len(inputs) > MaxTrips {
		return nil, fmt.Errorf("session has %d trips, at most %d allowed", len(inputs), MaxTrips)
	}

	planned := make([]Input, len(inputs))
	copy(planned, inputs)

	for i := range planned {
		if strings.TrimSpace(planned[i].WaybillNo) != "" {
			continue
		}
		if i == 0 {
			if next == "" {
				return nil, ErrNoWaybill
			}
			planned[i].WaybillNo = next
			continue
		}
		n, err := Increment(planned[i-1].WaybillNo)
		if err != nil {
			return nil, fmt.Errorf("trip %d: %w", i+1, err)
		}
		planned[i].WaybillNo = n
	}

	if len(planned) == 2 && strings.TrimSpace(planned[0].WaybillNo) == strings.TrimSpace(planned[1].WaybillNo) {
		return nil, &ValidationError{Field: "waybill_no", Reason: "is used by both trips"}
	}

	return planned, nil
}

// ValidateAll validates every planned trip, stopping at the first error.
func ValidateAll(inputs []Input) ([]models.Trip, error) {
	trips := make([]models.Trip, 0, len(inputs))
	for i, in := range inputs {
		t, err := Validate(in)
		if err != nil {
			return nil, fmt.Errorf("trip %d: %w", i+1, err)
		}
		trips = append(trips, t)
	}
	return trips, nil
}

// Increment returns the waybill number after number, keeping its width.
func Increment(number string) (string, error) {
	number = strings.TrimSpace(number)
	if !digits(number) {
		return "", fmt.Errorf("waybill number %q is not numeric", number)
	}
	n, err := strconv.ParseUint(number, 10, 64)
	if err != nil {
		return "", fmt.Errorf("waybill number %q: %w", number, err)
	}
	return fmt.Sprintf("%0*d", len(number), n+1), nil
}

// Decode reads a YAML session.
func Decode(r io.Reader) (Session, error) {
	var s Session
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Session{}, fmt.Errorf("session file is empty")
		}
		return Session{}, fmt.Errorf("parse session: %w", err)
	}
	return s, nil
}

// LoadFile reads a YAML session from path.
func LoadFile(path string) (Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return Session{}, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes s as YAML.
func Encode(w io.Writer, s Session) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// FromTicket prefills a trip from extracted ticket data. The waybill number
// is left for PlanSession.
func FromTicket(d models.TicketData) Input {
	in := Input{
		TripTicket:   d.TripTicket,
		Date:         d.DeliveryDate,
		PlateNo:      d.PlateNo,
		Origin:       d.Origin,
		ReferenceNos: d.ReferenceNos,
		SealNos:      d.SealNos,
	}
	if d.TotalBlocks > 0 {
		in.TotalBlocks = strconv.Itoa(d.TotalBlocks)
	}
	if d.Fleet != nil {
		in.DriverName = d.Fleet.Driver
		in.Helper1 = d.Fleet.Helper1
		in.Helper2 = d.Fleet.Helper2
	}
	return in
}

func trimmed(in Input) Input {
	in.WaybillNo = strings.TrimSpace(in.WaybillNo)
	in.TripTicket = strings.TrimSpace(in.TripTicket)
	in.Date = strings.TrimSpace(in.Date)
	in.PlateNo = strings.TrimSpace(in.PlateNo)
	in.Origin = strings.TrimSpace(in.Origin)
	in.DriverName = strings.TrimSpace(in.DriverName)
	in.Helper1 = strings.TrimSpace(in.Helper1)
	in.Helper2 = strings.TrimSpace(in.Helper2)
	in.TotalBlocks = strings.TrimSpace(in.TotalBlocks)
	return in
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
