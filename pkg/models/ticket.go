package models

// FleetEntry is one row of the reference workbook: a truck with its usual
// crew and the shipper route it serves.
type FleetEntry struct {
	Truck    string // TRUCK - plate number as written
	Driver   string // DRIVER
	Helper1  string // HELPER 1
	Helper2  string // HELPER 2
	Keywords string // KEYWORDS
	Origins  string // ORIGINS
	Shipper  string // FULL - shipper full name
	From     string // FROM
	To       string // TO
}

// TicketData holds the fields read off a scanned trip ticket.
type TicketData struct {
	TripTicket   string      `json:"trip_ticket"`
	DeliveryDate string      `json:"delivery_date,omitempty"`
	Origin       string      `json:"origin"`
	PlateNo      string      `json:"plate_no"`
	TotalBlocks  int         `json:"total_blocks"`
	ReferenceNos []string    `json:"ref_nos,omitempty"`
	SealNos      []string    `json:"seal_nos,omitempty"`
	Fleet        *FleetEntry `json:"fleet,omitempty"`
}

// MissingFields lists the required ticket fields that are still empty.
func (d TicketData) MissingFields() []string {
	var missing []string
	if d.TripTicket == "" {
		missing = append(missing, "trip_ticket")
	}
	if d.DeliveryDate == "" {
		missing = append(missing, "delivery_date")
	}
	if d.PlateNo == "" {
		missing = append(missing, "plate_no")
	}
	if d.Origin == "" {
		missing = append(missing, "origin")
	}
	return missing
}
