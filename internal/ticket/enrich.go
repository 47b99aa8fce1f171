package ticket

import (
	"fmt"

	"waybill/pkg/models"
)

// Directory finds the fleet entry serving an origin.
type Directory interface {
	LookupOrigin(keyword string) (*models.FleetEntry, bool, error)
}

// Enrich attaches the fleet entry for d's origin and takes its plate number.
// It reports whether an entry matched.
func Enrich(d *models.TicketData, dir Directory) (bool, error) {
	if d.Origin == "" {
		return false, nil
	}

	entry, ok, err := dir.LookupOrigin(d.Origin)
	if err != nil {
		return false, fmt.Errorf("lookup origin %q: %w", d.Origin, err)
	}
	if !ok {
		return false, nil
	}

	d.Fleet = entry
	if entry.Truck != "" {
		d.PlateNo = entry.Truck
	}
	return true, nil
}
