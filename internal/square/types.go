// Package square contains the Square REST client used for the shop's
// customer directory, booking ledger, availability search, and catalog.
package square

import (
	"encoding/json"
	"time"
)

// Booking status values as reported by Square. There is no completed status;
// past-vs-upcoming is derived from start_at at query time.
const (
	StatusCancelledBySeller   = "CANCELLED_BY_SELLER"
	StatusCancelledByCustomer = "CANCELLED_BY_CUSTOMER"
)

// AppointmentSegment is one service within a booking. Durations are not
// stored here authoritatively; the catalog owns them.
type AppointmentSegment struct {
	ServiceVariationID      string `json:"service_variation_id"`
	TeamMemberID            string `json:"team_member_id"`
	ServiceVariationVersion int64  `json:"service_variation_version,omitempty"`
	DurationMinutes         int    `json:"duration_minutes,omitempty"`
}

// Booking is Square's appointment record. Version is the optimistic
// concurrency token required on every mutation.
type Booking struct {
	ID                  string               `json:"id,omitempty"`
	Version             int                  `json:"version,omitempty"`
	Status              string               `json:"status,omitempty"`
	StartAt             time.Time            `json:"start_at"`
	LocationID          string               `json:"location_id,omitempty"`
	CustomerID          string               `json:"customer_id,omitempty"`
	CustomerNote        string               `json:"customer_note,omitempty"`
	AppointmentSegments []AppointmentSegment `json:"appointment_segments,omitempty"`
	CreatedAt           time.Time            `json:"created_at,omitzero"`
	UpdatedAt           time.Time            `json:"updated_at,omitzero"`
}

// Cancelled reports whether the booking has been cancelled by either party.
func (b Booking) Cancelled() bool {
	return b.Status == StatusCancelledBySeller || b.Status == StatusCancelledByCustomer
}

// ServiceVariationIDs lists the booking's segment service IDs in order.
func (b Booking) ServiceVariationIDs() []string {
	ids := make([]string, 0, len(b.AppointmentSegments))
	for _, seg := range b.AppointmentSegments {
		ids = append(ids, seg.ServiceVariationID)
	}
	return ids
}

// TeamMemberID returns the staff member shared by the booking's segments.
func (b Booking) TeamMemberID() string {
	if len(b.AppointmentSegments) == 0 {
		return ""
	}
	return b.AppointmentSegments[0].TeamMemberID
}

// Customer is a Square customer-directory record.
type Customer struct {
	ID           string `json:"id,omitempty"`
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	Note         string `json:"note,omitempty"`
}

// Availability is one candidate slot from Square's availability search. Not
// authoritative: a returned slot can still collide with a same-day booking,
// which is why the availability engine subtracts known bookings.
type Availability struct {
	StartAt             time.Time            `json:"start_at"`
	LocationID          string               `json:"location_id,omitempty"`
	AppointmentSegments []AppointmentSegment `json:"appointment_segments,omitempty"`
}

// Money is an integer amount in minor units (cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

// Location describes the shop as registered with Square.
type Location struct {
	ID            string          `json:"id"`
	Name          string          `json:"name,omitempty"`
	Timezone      string          `json:"timezone,omitempty"`
	PhoneNumber   string          `json:"phone_number,omitempty"`
	BusinessHours json.RawMessage `json:"business_hours,omitempty"`
	Address       json.RawMessage `json:"address,omitempty"`
}

// CatalogItemVariation is a bookable variation of a catalog item.
type CatalogItemVariation struct {
	ID                string `json:"id"`
	ItemVariationData struct {
		Name            string `json:"name,omitempty"`
		PriceMoney      *Money `json:"price_money,omitempty"`
		ServiceDuration int64  `json:"service_duration,omitempty"`
	} `json:"item_variation_data"`
}

// CatalogItem is a catalog ITEM object with its variations.
type CatalogItem struct {
	ID       string `json:"id"`
	ItemData struct {
		Name        string                 `json:"name,omitempty"`
		Description string                 `json:"description,omitempty"`
		Variations  []CatalogItemVariation `json:"variations,omitempty"`
	} `json:"item_data"`
}

// TeamMember is a staff member assignable to bookings.
type TeamMember struct {
	ID           string `json:"id"`
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	IsOwner      bool   `json:"is_owner,omitempty"`
	Status       string `json:"status,omitempty"`
}
