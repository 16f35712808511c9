package bookings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/barbershop-ai-platform/internal/square"
	"github.com/wolfman30/barbershop-ai-platform/internal/timeutil"
)

// lookupSpan is how far the lookup reaches around now, in both directions.
// Wide enough to show recent visits alongside upcoming appointments.
const lookupSpan = 30 * 24 * time.Hour

// FormattedBooking is a booking rendered for the voice agent, with the start
// time both machine-readable and spoken.
type FormattedBooking struct {
	ID                string   `json:"id"`
	Status            string   `json:"status"`
	StartAt           string   `json:"startAt"`
	StartAtFormatted  string   `json:"startAt_formatted"`
	ServiceNames      []string `json:"serviceNames"`
	ServicesFormatted string   `json:"services_formatted"`
	DurationMinutes   int      `json:"durationMinutes"`
}

// LookupResult splits a customer's bookings by lifecycle state. Cancelled
// bookings are listed separately so the agent never offers to reschedule one.
type LookupResult struct {
	Success           bool               `json:"success"`
	ActiveBookings    []FormattedBooking `json:"activeBookings"`
	CompletedBookings []FormattedBooking `json:"completedBookings"`
	CancelledBookings []FormattedBooking `json:"cancelledBookings"`
	TotalCount        int                `json:"totalCount"`
	Message           string             `json:"message"`
}

// LookupCustomerBookings lists a customer's bookings within a month either
// side of now, split into upcoming, past, and cancelled.
func (e *Engine) LookupCustomerBookings(ctx context.Context, customerID string) (*LookupResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.lookup")
	defer span.End()

	now := e.now()
	all, err := e.platform.ListBookings(ctx, square.ListBookingsParams{
		LocationID: e.locationID,
		CustomerID: customerID,
		StartAtMin: now.Add(-lookupSpan),
		StartAtMax: now.Add(lookupSpan),
	})
	if err != nil {
		return nil, fmt.Errorf("list customer bookings: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartAt.Before(all[j].StartAt) })

	result := &LookupResult{
		Success:           true,
		ActiveBookings:    []FormattedBooking{},
		CompletedBookings: []FormattedBooking{},
		CancelledBookings: []FormattedBooking{},
	}
	for _, b := range all {
		fb := e.formatBooking(b)
		switch {
		case b.Cancelled():
			result.CancelledBookings = append(result.CancelledBookings, fb)
		case b.StartAt.Before(now):
			result.CompletedBookings = append(result.CompletedBookings, fb)
		default:
			result.ActiveBookings = append(result.ActiveBookings, fb)
		}
	}
	result.TotalCount = len(result.ActiveBookings) + len(result.CompletedBookings)

	switch {
	case len(result.ActiveBookings) > 0:
		next := result.ActiveBookings[0]
		result.Message = fmt.Sprintf("You have %d upcoming appointment(s). The next one is %s on %s.",
			len(result.ActiveBookings), next.ServicesFormatted, next.StartAtFormatted)
	case len(result.CompletedBookings) > 0:
		result.Message = "You have no upcoming appointments. Would you like to book one?"
	default:
		result.Message = "I could not find any appointments for you. Would you like to book one?"
	}

	e.logger.Info("customer booking lookup",
		"customer_id", customerID,
		"active", len(result.ActiveBookings),
		"completed", len(result.CompletedBookings),
		"cancelled", len(result.CancelledBookings),
	)
	return result, nil
}

func (e *Engine) formatBooking(b square.Booking) FormattedBooking {
	names := make([]string, 0, len(b.AppointmentSegments))
	for _, seg := range b.AppointmentSegments {
		names = append(names, e.catalog.NameFor(seg.ServiceVariationID))
	}
	duration := e.catalog.TotalDuration(b.ServiceVariationIDs())
	return FormattedBooking{
		ID:                b.ID,
		Status:            b.Status,
		StartAt:           b.StartAt.UTC().Format(time.RFC3339),
		StartAtFormatted:  timeutil.FormatHuman(b.StartAt),
		ServiceNames:      names,
		ServicesFormatted: strings.Join(names, ", "),
		DurationMinutes:   int(duration.Minutes()),
	}
}
