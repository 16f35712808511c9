// Package availability computes truly-free appointment slots by reconciling
// Square's availability search against the active booking ledger.
package availability

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-ai-platform/internal/catalog"
	"github.com/wolfman30/barbershop-ai-platform/internal/square"
	"github.com/wolfman30/barbershop-ai-platform/internal/timeutil"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

var availabilityTracer = otel.Tracer("barbershop.internal.availability")

const (
	// exactMatchTolerance is how close a slot must start to the requested
	// instant to count as "that time is available".
	exactMatchTolerance = time.Minute
	// maxAlternatives caps the nearest-alternative suggestions.
	maxAlternatives = 5
	// defaultLookahead is the search window when no date or time is given.
	defaultLookahead = 7 * 24 * time.Hour
)

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// platform is the slice of the Square client the engine needs.
type platform interface {
	SearchAvailability(ctx context.Context, query square.AvailabilityQuery) ([]square.Availability, error)
	ListBookings(ctx context.Context, params square.ListBookingsParams) ([]square.Booking, error)
}

// Engine answers "is this time free" and "what times are free" queries.
type Engine struct {
	platform   platform
	catalog    *catalog.Catalog
	locationID string
	logger     *logging.Logger
	now        func() time.Time
}

// NewEngine constructs an availability engine.
func NewEngine(p platform, cat *catalog.Catalog, locationID string, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		platform:   p,
		catalog:    cat,
		locationID: locationID,
		logger:     logger.Component("availability"),
		now:        time.Now,
	}
}

// WithClock overrides the engine's clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Query is a caller's availability question. StartDate (YYYY-MM-DD) broadens
// the search to that whole civil day; DateTime narrows it to ±2 hours around
// a specific instant; neither means the next seven days.
type Query struct {
	StartDate          string
	DateTime           string
	ServiceVariationID string
	TeamMemberID       string
}

// Slot is a free slot formatted for the voice agent.
type Slot struct {
	StartAtUTC    string `json:"start_at_utc"`
	StartAtLocal  string `json:"start_at_edt"`
	HumanReadable string `json:"human_readable"`
	Time24h       string `json:"time_24h"`
}

// Result is the engine's answer. Success is true for every business outcome,
// including "nothing free" and "that time is taken".
type Result struct {
	Success                bool    `json:"success"`
	IsAvailable            *bool   `json:"isAvailable,omitempty"`
	RequestedTime          string  `json:"requestedTime,omitempty"`
	RequestedTimeFormatted string  `json:"requestedTimeFormatted,omitempty"`
	Slot                   *Slot   `json:"slot,omitempty"`
	ClosestAlternatives    []Slot  `json:"closestAlternatives,omitempty"`
	AvailableSlots         []Slot  `json:"availableSlots"`
	TotalCount             int     `json:"totalCount"`
	FirstAvailable         string  `json:"firstAvailable,omitempty"`
	LastAvailable          string  `json:"lastAvailable,omitempty"`
	Message                string  `json:"message"`
}

type window struct {
	start     time.Time
	end       time.Time
	requested *time.Time
}

type windowOutcome int

const (
	windowOK windowOutcome = iota
	windowPastDate
	windowInverted
)

// resolveWindow applies the window resolution policy. It never calls the
// platform; rejected windows short-circuit before any network traffic.
func (e *Engine) resolveWindow(q Query) (window, windowOutcome, error) {
	now := e.now()

	if q.StartDate != "" && dateOnlyRe.MatchString(q.StartDate) {
		start, end, err := timeutil.CivilDayBounds(q.StartDate)
		if err != nil {
			return window{}, windowOK, err
		}
		if end.Before(now) {
			return window{}, windowPastDate, nil
		}
		if start.Before(now) {
			start = now
		}
		if !start.Before(end) {
			return window{}, windowInverted, nil
		}
		return window{start: start, end: end}, windowOK, nil
	}

	timeInput := q.StartDate
	if timeInput == "" {
		timeInput = q.DateTime
	}
	if timeInput != "" {
		if requested, err := e.parseRequestedTime(timeInput, now); err == nil {
			w := window{
				start:     requested.Add(-2 * time.Hour),
				end:       requested.Add(2 * time.Hour),
				requested: &requested,
			}
			if !w.start.Before(w.end) {
				return window{}, windowInverted, nil
			}
			return w, windowOK, nil
		}
		e.logger.Warn("unparseable availability time input, searching next 7 days", "input", timeInput)
	}

	return window{start: now, end: now.Add(defaultLookahead)}, windowOK, nil
}

func (e *Engine) parseRequestedTime(input string, now time.Time) (time.Time, error) {
	normalized, err := timeutil.NormalizeStartTime(input, now)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.ParseInstant(normalized)
}

// GetAvailability runs the full reconciliation: candidate slots from Square's
// search, minus slots whose start instant collides with an active booking.
// The subtraction defends against Square's availability search not accounting
// for same-day bookings consistently.
func (e *Engine) GetAvailability(ctx context.Context, q Query) (*Result, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.get")
	defer span.End()

	w, outcome, err := e.resolveWindow(q)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case windowPastDate:
		e.logger.Info("requested date is entirely in the past", "start_date", q.StartDate)
		return &Result{
			Success:        true,
			AvailableSlots: []Slot{},
			Message:        "That date has already passed. Please choose a future date.",
		}, nil
	case windowInverted:
		return &Result{
			Success:        true,
			AvailableSlots: []Slot{},
			Message:        "No available times - the requested time is outside business hours",
		}, nil
	}

	serviceID := q.ServiceVariationID
	if serviceID == "" {
		serviceID = e.catalog.DefaultVariationID()
		e.logger.Info("no service specified, using default", "service_variation_id", serviceID)
	}
	span.SetAttributes(
		attribute.String("barbershop.service_variation_id", serviceID),
		attribute.String("barbershop.window_start", w.start.UTC().Format(time.RFC3339)),
		attribute.String("barbershop.window_end", w.end.UTC().Format(time.RFC3339)),
	)

	candidates, err := e.platform.SearchAvailability(ctx, square.AvailabilityQuery{
		LocationID:         e.locationID,
		StartAt:            w.start,
		EndAt:              w.end,
		ServiceVariationID: serviceID,
		TeamMemberID:       q.TeamMemberID,
	})
	if err != nil {
		return nil, fmt.Errorf("availability search: %w", err)
	}

	active, err := e.activeBookings(ctx, w.start, w.end)
	if err != nil {
		return nil, err
	}

	free := subtractBooked(candidates, active)
	e.logger.Info("reconciled availability",
		"candidates", len(candidates),
		"active_bookings", len(active),
		"free", len(free),
	)

	sort.Slice(free, func(i, j int) bool { return free[i].StartAt.Before(free[j].StartAt) })
	slots := make([]Slot, 0, len(free))
	instants := make([]time.Time, 0, len(free))
	for _, c := range free {
		slots = append(slots, formatSlot(c.StartAt))
		instants = append(instants, c.StartAt)
	}

	if w.requested != nil {
		return e.exactTimeResult(slots, instants, *w.requested), nil
	}
	return listResult(slots), nil
}

// activeBookings lists the window's bookings with cancelled ones discarded.
func (e *Engine) activeBookings(ctx context.Context, start, end time.Time) ([]square.Booking, error) {
	bookings, err := e.platform.ListBookings(ctx, square.ListBookingsParams{
		LocationID: e.locationID,
		StartAtMin: start,
		StartAtMax: end,
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	active := bookings[:0]
	for _, b := range bookings {
		if !b.Cancelled() {
			active = append(active, b)
		}
	}
	return active, nil
}

// subtractBooked drops candidates whose start instant exactly matches an
// active booking's start. Exact-equality matching only: a granularity skew
// between the search and the ledger can still let a booked slot through.
func subtractBooked(candidates []square.Availability, active []square.Booking) []square.Availability {
	booked := make(map[int64]struct{}, len(active))
	for _, b := range active {
		booked[b.StartAt.Unix()] = struct{}{}
	}
	free := make([]square.Availability, 0, len(candidates))
	for _, c := range candidates {
		if _, taken := booked[c.StartAt.Unix()]; taken {
			continue
		}
		free = append(free, c)
	}
	return free
}

func formatSlot(t time.Time) Slot {
	human, time24, localISO := timeutil.SlotStrings(t)
	return Slot{
		StartAtUTC:    t.UTC().Format(time.RFC3339),
		StartAtLocal:  localISO,
		HumanReadable: human,
		Time24h:       time24,
	}
}

func (e *Engine) exactTimeResult(slots []Slot, instants []time.Time, requested time.Time) *Result {
	for i, instant := range instants {
		diff := instant.Sub(requested)
		if diff < 0 {
			diff = -diff
		}
		if diff < exactMatchTolerance {
			match := slots[i]
			yes := true
			return &Result{
				Success:                true,
				IsAvailable:            &yes,
				RequestedTime:          requested.UTC().Format(time.RFC3339),
				RequestedTimeFormatted: match.HumanReadable,
				Slot:                   &match,
				AvailableSlots:         []Slot{},
				Message:                fmt.Sprintf("Yes, %s is available", match.HumanReadable),
			}
		}
	}

	alternatives := closestAlternatives(slots, instants, requested, maxAlternatives)
	altTimes := ""
	for i, a := range alternatives {
		if i > 0 {
			altTimes += ", "
		}
		altTimes += a.HumanReadable
	}
	no := false
	return &Result{
		Success:             true,
		IsAvailable:         &no,
		RequestedTime:       requested.UTC().Format(time.RFC3339),
		ClosestAlternatives: alternatives,
		AvailableSlots:      []Slot{},
		Message:             fmt.Sprintf("That time is not available. The closest available times are: %s", altTimes),
	}
}

// closestAlternatives picks the count slots nearest to the requested instant,
// ascending by time distance.
func closestAlternatives(slots []Slot, instants []time.Time, requested time.Time, count int) []Slot {
	type ranked struct {
		slot Slot
		dist time.Duration
	}
	rankings := make([]ranked, 0, len(slots))
	for i, s := range slots {
		dist := instants[i].Sub(requested)
		if dist < 0 {
			dist = -dist
		}
		rankings = append(rankings, ranked{slot: s, dist: dist})
	}
	sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].dist < rankings[j].dist })
	if len(rankings) > count {
		rankings = rankings[:count]
	}
	out := make([]Slot, 0, len(rankings))
	for _, r := range rankings {
		out = append(out, r.slot)
	}
	return out
}

func listResult(slots []Slot) *Result {
	if len(slots) == 0 {
		return &Result{
			Success:        true,
			AvailableSlots: []Slot{},
			Message:        "No available times found",
		}
	}
	first := slots[0].HumanReadable
	last := slots[len(slots)-1].HumanReadable
	return &Result{
		Success:        true,
		AvailableSlots: slots,
		TotalCount:     len(slots),
		FirstAvailable: first,
		LastAvailable:  last,
		Message:        fmt.Sprintf("We have %d available times from %s to %s", len(slots), first, last),
	}
}
