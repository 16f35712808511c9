// Package bookings creates, extends, reschedules, and cancels appointments,
// re-validating before every mutation that the resulting time window does not
// overlap another active booking for the same staff member.
package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-ai-platform/internal/catalog"
	"github.com/wolfman30/barbershop-ai-platform/internal/square"
	"github.com/wolfman30/barbershop-ai-platform/internal/timeutil"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

var bookingsTracer = otel.Tracer("barbershop.internal.bookings")

// SourcePhoneBooking tags every booking this server writes.
const SourcePhoneBooking = "Phone Booking (ElevenLabs AI)"

// overlapPadFloor is the minimum lookahead past the candidate interval end
// when listing potential conflicts. The effective pad is the larger of this
// and the longest catalog duration, so a long service cannot start inside the
// pad and be missed.
const overlapPadFloor = time.Hour

// platform is the slice of the Square client the engine needs.
type platform interface {
	RetrieveBooking(ctx context.Context, bookingID string) (*square.Booking, error)
	CreateBooking(ctx context.Context, params square.CreateBookingParams) (*square.Booking, error)
	UpdateBooking(ctx context.Context, bookingID string, params square.UpdateBookingParams) (*square.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, version int) (*square.Booking, error)
	ListBookings(ctx context.Context, params square.ListBookingsParams) ([]square.Booking, error)
}

// Engine is the booking conflict and lifecycle engine. It holds no state;
// every decision is re-derived from live platform reads, because the only
// consistency primitive available is Square's booking version token plus
// re-validation immediately before each write.
type Engine struct {
	platform   platform
	catalog    *catalog.Catalog
	locationID string
	logger     *logging.Logger
	now        func() time.Time
}

// NewEngine constructs a booking lifecycle engine.
func NewEngine(p platform, cat *catalog.Catalog, locationID string, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		platform:   p,
		catalog:    cat,
		locationID: locationID,
		logger:     logger.Component("bookings"),
		now:        time.Now,
	}
}

// WithClock overrides the engine's clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// InvalidServiceNamesError rejects an add-services request naming unmapped
// services. Nothing is applied partially.
type InvalidServiceNamesError struct {
	Invalid []string
	Valid   []string
}

func (e *InvalidServiceNamesError) Error() string {
	return fmt.Sprintf("invalid service names: %s. Valid names are: %s",
		strings.Join(e.Invalid, ", "), strings.Join(e.Valid, ", "))
}

// Conflict describes the first overlapping active booking found.
type Conflict struct {
	Booking square.Booking
}

// CheckForOverlaps is the shared pre-flight primitive behind add-services and
// reschedule. A candidate conflicts iff it is active, is not the booking
// being modified, and starts strictly before intervalEnd; starting exactly at
// intervalEnd is back-to-back and allowed. Returns the first conflict found.
func (e *Engine) CheckForOverlaps(ctx context.Context, intervalStart, intervalEnd time.Time, teamMemberID, excludeBookingID string) (*Conflict, error) {
	pad := e.catalog.MaxDuration()
	if pad < overlapPadFloor {
		pad = overlapPadFloor
	}
	e.logger.Info("checking for overlaps",
		"start", intervalStart.UTC().Format(time.RFC3339),
		"end", intervalEnd.UTC().Format(time.RFC3339),
		"team_member_id", teamMemberID,
	)

	candidates, err := e.platform.ListBookings(ctx, square.ListBookingsParams{
		LocationID:   e.locationID,
		TeamMemberID: teamMemberID,
		StartAtMin:   intervalStart,
		StartAtMax:   intervalEnd.Add(pad),
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings for overlap check: %w", err)
	}

	for _, b := range candidates {
		if b.ID == excludeBookingID || b.Cancelled() {
			continue
		}
		if b.StartAt.Before(intervalEnd) {
			e.logger.Warn("overlap detected",
				"conflicting_booking_id", b.ID,
				"conflicting_start", b.StartAt.UTC().Format(time.RFC3339),
			)
			return &Conflict{Booking: b}, nil
		}
	}
	return nil, nil
}

// CreateParams describe a new appointment.
type CreateParams struct {
	CustomerID          string
	StartTime           string
	ServiceVariationIDs []string
	TeamMemberID        string
}

// CreateResult is the created booking enriched with derived totals.
type CreateResult struct {
	Booking         *square.Booking
	DurationMinutes int
	ServiceCount    int
	ServiceNames    []string
}

// Create books an appointment with one segment per service, all sharing one
// team member. The start time is normalized to the shop timezone when it
// lacks an offset; anything unparseable is passed through for Square to
// reject. A fresh idempotency token per attempt keeps retried agent calls
// from double-booking.
func (e *Engine) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.customer_id", params.CustomerID),
		attribute.Int("barbershop.service_count", len(params.ServiceVariationIDs)),
	)

	if len(params.ServiceVariationIDs) == 0 {
		return nil, fmt.Errorf("create booking: no services given")
	}

	startAt := params.StartTime
	if normalized, err := timeutil.NormalizeStartTime(params.StartTime, e.now()); err == nil {
		if instant, perr := timeutil.ParseInstant(normalized); perr == nil {
			startAt = instant.UTC().Format(time.RFC3339)
		}
	} else {
		e.logger.Warn("unparseable start time, passing through", "start_time", params.StartTime)
	}

	segments := make([]square.AppointmentSegment, 0, len(params.ServiceVariationIDs))
	names := make([]string, 0, len(params.ServiceVariationIDs))
	for _, id := range params.ServiceVariationIDs {
		segments = append(segments, square.AppointmentSegment{
			ServiceVariationID:      id,
			TeamMemberID:            params.TeamMemberID,
			ServiceVariationVersion: e.now().UnixMilli(),
		})
		names = append(names, e.catalog.NameFor(id))
	}

	create := square.CreateBookingParams{
		IdempotencyKey: uuid.NewString(),
		LocationID:     e.locationID,
		CustomerID:     params.CustomerID,
		StartAt:        startAt,
		CustomerNote:   SourcePhoneBooking,
		Segments:       segments,
	}
	booking, err := e.platform.CreateBooking(ctx, create)
	if err != nil {
		e.logger.Error("booking creation failed",
			"customer_id", params.CustomerID,
			"start_at", startAt,
			"service_variation_ids", params.ServiceVariationIDs,
			"team_member_id", params.TeamMemberID,
			"error", err,
		)
		return nil, err
	}

	duration := e.catalog.TotalDuration(params.ServiceVariationIDs)
	e.logger.Info("booking created", "booking_id", booking.ID, "duration_minutes", int(duration.Minutes()))
	return &CreateResult{
		Booking:         booking,
		DurationMinutes: int(duration.Minutes()),
		ServiceCount:    len(params.ServiceVariationIDs),
		ServiceNames:    names,
	}, nil
}

// AddServicesResult is the outcome of extending a booking. HasConflict
// responses are business outcomes, not errors.
type AddServicesResult struct {
	Success            bool            `json:"success"`
	HasConflict        bool            `json:"hasConflict,omitempty"`
	Booking            *square.Booking `json:"booking,omitempty"`
	ServicesAdded      []string        `json:"servicesAdded,omitempty"`
	TotalServices      int             `json:"totalServices,omitempty"`
	NextBooking        string          `json:"nextBooking,omitempty"`
	AdditionalDuration int             `json:"additionalDuration,omitempty"`
	Message            string          `json:"message"`
}

// AddServices extends a booking with more services. Square appointment
// segments are immutable after creation, so the extension is implemented as
// cancel-old/create-new at the same start time, after a pre-flight overlap
// check over the new, longer interval. The two platform calls are not
// transactional; on create failure the original booking is recreated
// best-effort, and a failure of that rollback is surfaced as fatal.
func (e *Engine) AddServices(ctx context.Context, bookingID string, serviceNames []string) (*AddServicesResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.add_services")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.booking_id", bookingID))

	current, err := e.platform.RetrieveBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("retrieve booking: %w", err)
	}
	if len(current.AppointmentSegments) == 0 {
		return nil, fmt.Errorf("booking %s has no appointment segments", bookingID)
	}
	teamMemberID := current.TeamMemberID()

	newIDs := make([]string, 0, len(serviceNames))
	var invalid []string
	for _, name := range serviceNames {
		id, ok := e.catalog.VariationID(name)
		if !ok {
			invalid = append(invalid, name)
			continue
		}
		newIDs = append(newIDs, id)
	}
	if len(invalid) > 0 {
		return nil, &InvalidServiceNamesError{Invalid: invalid, Valid: e.catalog.ValidNames()}
	}

	combined := append(current.ServiceVariationIDs(), newIDs...)
	currentDuration := e.catalog.TotalDuration(current.ServiceVariationIDs())
	additionalDuration := e.catalog.TotalDuration(newIDs)
	totalDuration := currentDuration + additionalDuration
	newEnd := current.StartAt.Add(totalDuration)

	e.logger.Info("add services duration math",
		"booking_id", bookingID,
		"current_minutes", int(currentDuration.Minutes()),
		"additional_minutes", int(additionalDuration.Minutes()),
		"total_minutes", int(totalDuration.Minutes()),
	)

	conflict, err := e.CheckForOverlaps(ctx, current.StartAt, newEnd, teamMemberID, bookingID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		nextTime := timeutil.FormatHuman(conflict.Booking.StartAt)
		return &AddServicesResult{
			HasConflict:        true,
			NextBooking:        nextTime,
			AdditionalDuration: int(additionalDuration.Minutes()),
			Message: fmt.Sprintf(
				"I cannot add these services to your %s appointment because we have another customer scheduled at %s. The additional services would take %d minutes and would overlap with the next appointment.",
				timeutil.FormatHuman(current.StartAt), nextTime, int(additionalDuration.Minutes())),
		}, nil
	}

	replacement, err := e.replaceBooking(ctx, current, combined, teamMemberID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("booking extended", "old_booking_id", bookingID, "new_booking_id", replacement.ID, "services_added", len(newIDs))
	return &AddServicesResult{
		Success:       true,
		Booking:       replacement,
		ServicesAdded: serviceNames,
		TotalServices: len(combined),
		Message: fmt.Sprintf("Successfully added %s to your appointment. Your appointment will now take approximately %d minutes.",
			strings.Join(serviceNames, ", "), int(totalDuration.Minutes())),
	}, nil
}

// replaceBooking performs the cancel-then-create swap, compensating on
// failure by recreating the original booking.
func (e *Engine) replaceBooking(ctx context.Context, current *square.Booking, serviceIDs []string, teamMemberID string) (*square.Booking, error) {
	if _, err := e.platform.CancelBooking(ctx, current.ID, current.Version); err != nil {
		return nil, fmt.Errorf("cancel booking before replacement: %w", err)
	}

	note := current.CustomerNote
	if note == "" {
		note = SourcePhoneBooking
	}
	startAt := current.StartAt.UTC().Format(time.RFC3339)
	replacement, err := e.platform.CreateBooking(ctx, square.CreateBookingParams{
		IdempotencyKey: uuid.NewString(),
		LocationID:     current.LocationID,
		CustomerID:     current.CustomerID,
		StartAt:        startAt,
		CustomerNote:   note,
		Segments:       e.buildSegments(serviceIDs, teamMemberID),
	})
	if err == nil {
		return replacement, nil
	}

	e.logger.Error("replacement create failed after cancel, attempting rollback",
		"booking_id", current.ID, "error", err)
	_, rollbackErr := e.platform.CreateBooking(ctx, square.CreateBookingParams{
		IdempotencyKey: uuid.NewString(),
		LocationID:     current.LocationID,
		CustomerID:     current.CustomerID,
		StartAt:        startAt,
		CustomerNote:   note,
		Segments:       e.buildSegments(current.ServiceVariationIDs(), teamMemberID),
	})
	if rollbackErr != nil {
		e.logger.Error("ROLLBACK FAILED: original booking lost, manual reconciliation required",
			"booking_id", current.ID,
			"customer_id", current.CustomerID,
			"start_at", startAt,
			"create_error", err,
			"rollback_error", rollbackErr,
		)
		return nil, fmt.Errorf("booking %s was cancelled but could not be recreated; manual follow-up required: %w", current.ID, err)
	}
	return nil, fmt.Errorf("could not add services; your original appointment was preserved: %w", err)
}

func (e *Engine) buildSegments(serviceIDs []string, teamMemberID string) []square.AppointmentSegment {
	segments := make([]square.AppointmentSegment, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		segments = append(segments, square.AppointmentSegment{
			ServiceVariationID:      id,
			TeamMemberID:            teamMemberID,
			ServiceVariationVersion: e.now().UnixMilli(),
		})
	}
	return segments
}

// RescheduleResult is the outcome of moving a booking.
type RescheduleResult struct {
	Success         bool            `json:"success"`
	HasConflict     bool            `json:"hasConflict,omitempty"`
	Booking         *square.Booking `json:"booking,omitempty"`
	RequestedTime   string          `json:"requestedTime,omitempty"`
	ConflictingTime string          `json:"conflictingTime,omitempty"`
	Duration        int             `json:"duration,omitempty"`
	Message         string          `json:"message"`
}

// Reschedule moves a booking to a new start time, preserving its services
// and staff, after an overlap check over the moved interval. The update is
// optimistic-concurrency via the booking version and sends only the fields
// Square accepts on update.
func (e *Engine) Reschedule(ctx context.Context, bookingID, newStartTime string) (*RescheduleResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.booking_id", bookingID))

	current, err := e.platform.RetrieveBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("retrieve booking: %w", err)
	}
	if len(current.AppointmentSegments) == 0 {
		return nil, fmt.Errorf("booking %s has no appointment segments", bookingID)
	}
	teamMemberID := current.TeamMemberID()
	totalDuration := e.catalog.TotalDuration(current.ServiceVariationIDs())

	normalized, err := timeutil.NormalizeStartTime(newStartTime, e.now())
	if err != nil {
		return nil, fmt.Errorf("normalize new start time: %w", err)
	}
	newStart, err := timeutil.ParseInstant(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse new start time: %w", err)
	}
	newEnd := newStart.Add(totalDuration)

	e.logger.Info("reschedule requested",
		"booking_id", bookingID,
		"received_time", newStartTime,
		"normalized_time", normalized,
		"new_window_start", newStart.UTC().Format(time.RFC3339),
		"new_window_end", newEnd.UTC().Format(time.RFC3339),
		"duration_minutes", int(totalDuration.Minutes()),
	)

	conflict, err := e.CheckForOverlaps(ctx, newStart, newEnd, teamMemberID, bookingID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		conflictTime := timeutil.FormatHuman(conflict.Booking.StartAt)
		requestedTime := timeutil.FormatHuman(newStart)
		return &RescheduleResult{
			HasConflict:     true,
			RequestedTime:   requestedTime,
			ConflictingTime: conflictTime,
			Duration:        int(totalDuration.Minutes()),
			Message: fmt.Sprintf(
				"I cannot reschedule your appointment to %s because there is already another customer scheduled at %s. Your appointment would take %d minutes and would overlap. Please choose a different time.",
				requestedTime, conflictTime, int(totalDuration.Minutes())),
		}, nil
	}

	note := current.CustomerNote
	if note == "" {
		note = SourcePhoneBooking
	}
	segments := make([]square.AppointmentSegment, 0, len(current.AppointmentSegments))
	for _, seg := range current.AppointmentSegments {
		segments = append(segments, square.AppointmentSegment{
			ServiceVariationID:      seg.ServiceVariationID,
			TeamMemberID:            seg.TeamMemberID,
			ServiceVariationVersion: seg.ServiceVariationVersion,
		})
	}
	updated, err := e.platform.UpdateBooking(ctx, bookingID, square.UpdateBookingParams{
		Version:      current.Version,
		LocationID:   current.LocationID,
		CustomerID:   current.CustomerID,
		StartAt:      newStart.UTC().Format(time.RFC3339),
		CustomerNote: note + " (Rescheduled via phone)",
		Segments:     segments,
	})
	if err != nil {
		e.logger.Error("reschedule failed", "booking_id", bookingID, "error", err)
		return nil, err
	}

	human := timeutil.FormatHuman(updated.StartAt)
	e.logger.Info("booking rescheduled", "booking_id", bookingID, "new_time", human)
	return &RescheduleResult{
		Success: true,
		Booking: updated,
		Message: fmt.Sprintf("Appointment rescheduled to %s", human),
	}, nil
}

// CancelResult is the outcome of a cancellation.
type CancelResult struct {
	Success bool            `json:"success"`
	Booking *square.Booking `json:"booking,omitempty"`
	Message string          `json:"message"`
}

// Cancel cancels a booking. No overlap check: cancellation only shrinks the
// calendar. The fetch exists to obtain the current version token.
func (e *Engine) Cancel(ctx context.Context, bookingID string) (*CancelResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.booking_id", bookingID))

	current, err := e.platform.RetrieveBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("retrieve booking: %w", err)
	}
	cancelled, err := e.platform.CancelBooking(ctx, bookingID, current.Version)
	if err != nil {
		return nil, err
	}
	e.logger.Info("booking cancelled", "booking_id", bookingID)
	return &CancelResult{
		Success: true,
		Booking: cancelled,
		Message: "Appointment cancelled successfully",
	}, nil
}
