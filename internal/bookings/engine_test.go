package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barbershop-ai-platform/internal/catalog"
	"github.com/wolfman30/barbershop-ai-platform/internal/square"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

const (
	haircutID   = "7XPUHGDLY4N3H2OWTHMIABKF"
	beardTrimID = "SPUX6LRBS6RHFBX3MSRASG2J"
	goldID      = "7UKWUIF4CP7YR27FI52DWPEN"
)

type fakePlatform struct {
	booking  *square.Booking
	listings []square.Booking

	retrieveErr error
	cancelErr   error
	updateErr   error
	listErr     error

	// createErrs are consumed one per CreateBooking call; nil means success.
	createErrs []error

	cancelCalls   []int
	createCalls   []square.CreateBookingParams
	updateCalls   []square.UpdateBookingParams
	listCalls     []square.ListBookingsParams
	createCounter int
}

func (f *fakePlatform) RetrieveBooking(_ context.Context, _ string) (*square.Booking, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	b := *f.booking
	return &b, nil
}

func (f *fakePlatform) CreateBooking(_ context.Context, params square.CreateBookingParams) (*square.Booking, error) {
	f.createCalls = append(f.createCalls, params)
	idx := f.createCounter
	f.createCounter++
	if idx < len(f.createErrs) && f.createErrs[idx] != nil {
		return nil, f.createErrs[idx]
	}
	start, _ := time.Parse(time.RFC3339, params.StartAt)
	return &square.Booking{
		ID:                  "BK-NEW",
		Status:              "ACCEPTED",
		StartAt:             start,
		LocationID:          params.LocationID,
		CustomerID:          params.CustomerID,
		CustomerNote:        params.CustomerNote,
		AppointmentSegments: params.Segments,
	}, nil
}

func (f *fakePlatform) UpdateBooking(_ context.Context, bookingID string, params square.UpdateBookingParams) (*square.Booking, error) {
	f.updateCalls = append(f.updateCalls, params)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	start, _ := time.Parse(time.RFC3339, params.StartAt)
	return &square.Booking{
		ID:           bookingID,
		Version:      params.Version + 1,
		Status:       "ACCEPTED",
		StartAt:      start,
		CustomerNote: params.CustomerNote,
	}, nil
}

func (f *fakePlatform) CancelBooking(_ context.Context, bookingID string, version int) (*square.Booking, error) {
	f.cancelCalls = append(f.cancelCalls, version)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &square.Booking{ID: bookingID, Version: version + 1, Status: square.StatusCancelledBySeller}, nil
}

func (f *fakePlatform) ListBookings(_ context.Context, params square.ListBookingsParams) ([]square.Booking, error) {
	f.listCalls = append(f.listCalls, params)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listings, nil
}

// fixedNow is a summer Tuesday, 10:00 AM EDT.
var fixedNow = time.Date(2026, time.July, 14, 14, 0, 0, 0, time.UTC)

func newTestEngine(p *fakePlatform) *Engine {
	return NewEngine(p, catalog.Builtin(), "L1", logging.Default()).
		WithClock(func() time.Time { return fixedNow })
}

func existingBooking(start time.Time) *square.Booking {
	return &square.Booking{
		ID:           "BK1",
		Version:      2,
		Status:       "ACCEPTED",
		StartAt:      start,
		LocationID:   "L1",
		CustomerID:   "CUST1",
		CustomerNote: SourcePhoneBooking,
		AppointmentSegments: []square.AppointmentSegment{
			{ServiceVariationID: haircutID, TeamMemberID: "TM1"},
		},
	}
}

func TestCheckForOverlaps_BackToBackAllowed(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	p := &fakePlatform{listings: []square.Booking{
		{ID: "BK2", Status: "ACCEPTED", StartAt: end}, // starts exactly at interval end
	}}
	e := newTestEngine(p)

	conflict, err := e.CheckForOverlaps(context.Background(), start, end, "TM1", "")
	require.NoError(t, err)
	assert.Nil(t, conflict, "a booking starting at the interval end is back to back, not a conflict")
}

func TestCheckForOverlaps_StrictlyBeforeEndConflicts(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	p := &fakePlatform{listings: []square.Booking{
		{ID: "BK-CANCELLED", Status: square.StatusCancelledByCustomer, StartAt: start.Add(10 * time.Minute)},
		{ID: "BK-EXCLUDED", Status: "ACCEPTED", StartAt: start.Add(15 * time.Minute)},
		{ID: "BK-CONFLICT", Status: "ACCEPTED", StartAt: end.Add(-time.Minute)},
	}}
	e := newTestEngine(p)

	conflict, err := e.CheckForOverlaps(context.Background(), start, end, "TM1", "BK-EXCLUDED")
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, "BK-CONFLICT", conflict.Booking.ID)
}

func TestCheckForOverlaps_PadCoversLongestService(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	p := &fakePlatform{}
	e := newTestEngine(p)

	_, err := e.CheckForOverlaps(context.Background(), start, end, "TM1", "")
	require.NoError(t, err)
	require.Len(t, p.listCalls, 1)
	// Builtin catalog's longest service is 90 minutes, above the 1h floor.
	assert.Equal(t, end.Add(90*time.Minute), p.listCalls[0].StartAtMax)
	assert.Equal(t, "TM1", p.listCalls[0].TeamMemberID)
}

func TestCreate_OneSegmentPerService(t *testing.T) {
	p := &fakePlatform{}
	e := newTestEngine(p)

	res, err := e.Create(context.Background(), CreateParams{
		CustomerID:          "CUST1",
		StartTime:           "2026-07-17T14:30:00",
		ServiceVariationIDs: []string{haircutID, beardTrimID},
		TeamMemberID:        "TM1",
	})
	require.NoError(t, err)
	require.Len(t, p.createCalls, 1)
	call := p.createCalls[0]
	require.Len(t, call.Segments, 2)
	assert.Equal(t, "TM1", call.Segments[0].TeamMemberID)
	assert.Equal(t, "TM1", call.Segments[1].TeamMemberID)
	assert.NotEmpty(t, call.IdempotencyKey)
	assert.Equal(t, SourcePhoneBooking, call.CustomerNote)
	// Offsetless local time becomes 2:30 PM EDT, 18:30 UTC.
	assert.Equal(t, "2026-07-17T18:30:00Z", call.StartAt)
	assert.Equal(t, 60, res.DurationMinutes)
	assert.Equal(t, 2, res.ServiceCount)
	assert.Equal(t, []string{"Regular Haircut", "Beard Trim"}, res.ServiceNames)
}

func TestCreate_UnparseableStartPassedThrough(t *testing.T) {
	p := &fakePlatform{}
	e := newTestEngine(p)

	_, err := e.Create(context.Background(), CreateParams{
		CustomerID:          "CUST1",
		StartTime:           "sometime tomorrow",
		ServiceVariationIDs: []string{haircutID},
		TeamMemberID:        "TM1",
	})
	require.NoError(t, err)
	require.Len(t, p.createCalls, 1)
	assert.Equal(t, "sometime tomorrow", p.createCalls[0].StartAt,
		"malformed times go to the platform verbatim for it to reject")
}

func TestCreate_NoServicesRejected(t *testing.T) {
	e := newTestEngine(&fakePlatform{})
	_, err := e.Create(context.Background(), CreateParams{CustomerID: "CUST1", StartTime: "2026-07-17T14:30:00"})
	assert.Error(t, err)
}

func TestAddServices_InvalidNamesRejectedWhole(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	p := &fakePlatform{booking: existingBooking(start)}
	e := newTestEngine(p)

	_, err := e.AddServices(context.Background(), "BK1", []string{"Beard Trim", "Mullet Revival"})
	var invalidErr *InvalidServiceNamesError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, []string{"Mullet Revival"}, invalidErr.Invalid)
	assert.Contains(t, invalidErr.Valid, "Regular Haircut")
	assert.Empty(t, p.cancelCalls, "nothing is applied when any name is invalid")
	assert.Empty(t, p.createCalls)
}

func TestAddServices_ConflictReturnsBusinessOutcome(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	p := &fakePlatform{
		booking: existingBooking(start),
		listings: []square.Booking{
			// Haircut 30m + Gold 90m pushes the end to 20:00; 19:30 overlaps.
			{ID: "BK-NEXT", Status: "ACCEPTED", StartAt: start.Add(90 * time.Minute)},
		},
	}
	e := newTestEngine(p)

	res, err := e.AddServices(context.Background(), "BK1", []string{"Gold"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.HasConflict)
	assert.Equal(t, 90, res.AdditionalDuration)
	assert.NotEmpty(t, res.NextBooking)
	assert.Contains(t, res.Message, "would overlap")
	assert.Empty(t, p.cancelCalls, "a conflict must not mutate the ledger")
	assert.Empty(t, p.createCalls)
}

func TestAddServices_CancelsAndRecreatesCombined(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	p := &fakePlatform{booking: existingBooking(start)}
	e := newTestEngine(p)

	res, err := e.AddServices(context.Background(), "BK1", []string{"Beard Trim"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, p.cancelCalls, 1)
	assert.Equal(t, 2, p.cancelCalls[0], "cancel must send the current version")
	require.Len(t, p.createCalls, 1)
	call := p.createCalls[0]
	require.Len(t, call.Segments, 2)
	assert.Equal(t, haircutID, call.Segments[0].ServiceVariationID)
	assert.Equal(t, beardTrimID, call.Segments[1].ServiceVariationID)
	assert.Equal(t, start.Format(time.RFC3339), call.StartAt, "replacement keeps the original start")
	assert.Equal(t, 2, res.TotalServices)
	assert.Contains(t, res.Message, "60 minutes")
}

func TestAddServices_RollbackRecreatesOriginal(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	p := &fakePlatform{
		booking:    existingBooking(start),
		createErrs: []error{errors.New("create rejected"), nil},
	}
	e := newTestEngine(p)

	_, err := e.AddServices(context.Background(), "BK1", []string{"Beard Trim"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "original appointment was preserved")
	require.Len(t, p.createCalls, 2, "failed create must be followed by a rollback create")
	rollback := p.createCalls[1]
	require.Len(t, rollback.Segments, 1)
	assert.Equal(t, haircutID, rollback.Segments[0].ServiceVariationID)
	assert.Equal(t, start.Format(time.RFC3339), rollback.StartAt)
}

func TestAddServices_RollbackFailureIsFatal(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	p := &fakePlatform{
		booking:    existingBooking(start),
		createErrs: []error{errors.New("create rejected"), errors.New("square down")},
	}
	e := newTestEngine(p)

	_, err := e.AddServices(context.Background(), "BK1", []string{"Beard Trim"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manual follow-up required")
}

func TestReschedule_ConflictLeavesBookingUnmodified(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	newStart := time.Date(2026, time.July, 17, 20, 0, 0, 0, time.UTC)
	p := &fakePlatform{
		booking: existingBooking(start),
		listings: []square.Booking{
			{ID: "BK-NEXT", Status: "ACCEPTED", StartAt: newStart.Add(15 * time.Minute)},
		},
	}
	e := newTestEngine(p)

	res, err := e.Reschedule(context.Background(), "BK1", "2026-07-17T20:00:00Z")
	require.NoError(t, err)
	assert.True(t, res.HasConflict)
	assert.Equal(t, 30, res.Duration)
	assert.Contains(t, res.Message, "choose a different time")
	assert.Empty(t, p.updateCalls, "a conflict must not mutate the ledger")
}

func TestReschedule_UpdatesWithNoteSuffix(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	p := &fakePlatform{booking: existingBooking(start)}
	e := newTestEngine(p)

	res, err := e.Reschedule(context.Background(), "BK1", "2026-07-18T16:00:00")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, p.updateCalls, 1)
	call := p.updateCalls[0]
	assert.Equal(t, 2, call.Version)
	// Offsetless local 4:00 PM EDT is 20:00 UTC.
	assert.Equal(t, "2026-07-18T20:00:00Z", call.StartAt)
	assert.Contains(t, call.CustomerNote, "(Rescheduled via phone)")
	assert.Contains(t, res.Message, "rescheduled")
}

func TestReschedule_ChecksMovedInterval(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	p := &fakePlatform{booking: existingBooking(start)}
	e := newTestEngine(p)

	_, err := e.Reschedule(context.Background(), "BK1", "2026-07-18T16:00:00Z")
	require.NoError(t, err)
	require.Len(t, p.listCalls, 1)
	wantStart := time.Date(2026, time.July, 18, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, wantStart, p.listCalls[0].StartAtMin)
}

func TestCancel_UsesCurrentVersion(t *testing.T) {
	start := time.Date(2026, time.July, 17, 18, 0, 0, 0, time.UTC)
	p := &fakePlatform{booking: existingBooking(start)}
	e := newTestEngine(p)

	res, err := e.Cancel(context.Background(), "BK1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, p.cancelCalls, 1)
	assert.Equal(t, 2, p.cancelCalls[0])
}

func TestLookup_SplitsByLifecycle(t *testing.T) {
	upcoming := fixedNow.Add(48 * time.Hour)
	past := fixedNow.Add(-72 * time.Hour)
	cancelled := fixedNow.Add(24 * time.Hour)
	p := &fakePlatform{listings: []square.Booking{
		{ID: "BK-UP", Status: "ACCEPTED", StartAt: upcoming,
			AppointmentSegments: []square.AppointmentSegment{{ServiceVariationID: haircutID, TeamMemberID: "TM1"}}},
		{ID: "BK-PAST", Status: "ACCEPTED", StartAt: past,
			AppointmentSegments: []square.AppointmentSegment{{ServiceVariationID: goldID, TeamMemberID: "TM1"}}},
		{ID: "BK-GONE", Status: square.StatusCancelledByCustomer, StartAt: cancelled,
			AppointmentSegments: []square.AppointmentSegment{{ServiceVariationID: haircutID, TeamMemberID: "TM1"}}},
	}}
	e := newTestEngine(p)

	res, err := e.LookupCustomerBookings(context.Background(), "CUST1")
	require.NoError(t, err)
	require.Len(t, res.ActiveBookings, 1)
	require.Len(t, res.CompletedBookings, 1)
	require.Len(t, res.CancelledBookings, 1)
	assert.Equal(t, "BK-UP", res.ActiveBookings[0].ID)
	assert.Equal(t, []string{"Regular Haircut"}, res.ActiveBookings[0].ServiceNames)
	assert.Equal(t, 90, res.CompletedBookings[0].DurationMinutes)
	assert.Equal(t, 2, res.TotalCount, "cancelled bookings do not count")
	assert.Contains(t, res.Message, "upcoming appointment")
	require.Len(t, p.listCalls, 1)
	assert.Equal(t, "CUST1", p.listCalls[0].CustomerID)
}

func TestLookup_NoBookings(t *testing.T) {
	p := &fakePlatform{}
	e := newTestEngine(p)

	res, err := e.LookupCustomerBookings(context.Background(), "CUST1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.ActiveBookings)
	assert.Contains(t, res.Message, "could not find any appointments")
}
