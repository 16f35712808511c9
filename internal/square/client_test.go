package square

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/barbershop-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient("test-token", ts.URL, logging.Default())
}

func TestSearchCustomersByPhone_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v2/customers/search" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("auth header = %q", got)
		}
		var body struct {
			Query struct {
				Filter struct {
					PhoneNumber struct {
						Exact string `json:"exact"`
					} `json:"phone_number"`
				} `json:"filter"`
			} `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Query.Filter.PhoneNumber.Exact != "+15715266016" {
			t.Fatalf("phone filter = %s", body.Query.Filter.PhoneNumber.Exact)
		}
		_, _ = w.Write([]byte(`{"customers":[{"id":"CUST1","given_name":"Alex","phone_number":"5715266016"}]}`))
	})

	customers, err := client.SearchCustomersByPhone(context.Background(), "+15715266016")
	if err != nil {
		t.Fatalf("SearchCustomersByPhone() error = %v", err)
	}
	if len(customers) != 1 || customers[0].ID != "CUST1" {
		t.Fatalf("customers = %+v", customers)
	}
}

func TestCreateBooking_PayloadShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bookings" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["idempotency_key"] == "" {
			t.Fatal("missing idempotency_key")
		}
		booking := body["booking"].(map[string]any)
		if booking["start_at"] != "2026-07-15T18:30:00Z" {
			t.Fatalf("start_at = %v", booking["start_at"])
		}
		segs := booking["appointment_segments"].([]any)
		if len(segs) != 2 {
			t.Fatalf("segments = %d, want 2", len(segs))
		}
		_, _ = w.Write([]byte(`{"booking":{"id":"BK1","version":0,"status":"ACCEPTED","start_at":"2026-07-15T18:30:00Z"}}`))
	})

	booking, err := client.CreateBooking(context.Background(), CreateBookingParams{
		IdempotencyKey: "idem-1",
		LocationID:     "L1",
		CustomerID:     "CUST1",
		StartAt:        "2026-07-15T18:30:00Z",
		CustomerNote:   "Phone Booking (ElevenLabs AI)",
		Segments: []AppointmentSegment{
			{ServiceVariationID: "SVC1", TeamMemberID: "TM1"},
			{ServiceVariationID: "SVC2", TeamMemberID: "TM1"},
		},
	})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if booking.ID != "BK1" {
		t.Fatalf("booking ID = %s", booking.ID)
	}
}

func TestListBookings_QueryParams(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("location_id") != "L1" || q.Get("team_member_id") != "TM1" {
			t.Fatalf("query = %v", q)
		}
		if q.Get("start_at_min") != "2026-07-15T18:00:00Z" {
			t.Fatalf("start_at_min = %s", q.Get("start_at_min"))
		}
		_, _ = w.Write([]byte(`{"bookings":[{"id":"BK1","status":"ACCEPTED","start_at":"2026-07-15T18:30:00Z"}]}`))
	})

	bookings, err := client.ListBookings(context.Background(), ListBookingsParams{
		LocationID:   "L1",
		TeamMemberID: "TM1",
		StartAtMin:   time.Date(2026, 7, 15, 18, 0, 0, 0, time.UTC),
		StartAtMax:   time.Date(2026, 7, 15, 22, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ListBookings() error = %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("len(bookings) = %d", len(bookings))
	}
}

func TestSearchAvailability_EmptyTeamFilter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		filter := body["query"].(map[string]any)["filter"].(map[string]any)
		segs := filter["segment_filters"].([]any)
		seg := segs[0].(map[string]any)
		anyOf := seg["team_member_id_filter"].(map[string]any)["any"].([]any)
		if len(anyOf) != 0 {
			t.Fatalf("team filter should be empty, got %v", anyOf)
		}
		_, _ = w.Write([]byte(`{"availabilities":[{"start_at":"2026-07-15T18:30:00Z"}]}`))
	})

	slots, err := client.SearchAvailability(context.Background(), AvailabilityQuery{
		LocationID:         "L1",
		StartAt:            time.Now(),
		EndAt:              time.Now().Add(2 * time.Hour),
		ServiceVariationID: "SVC1",
	})
	if err != nil {
		t.Fatalf("SearchAvailability() error = %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("len(slots) = %d", len(slots))
	}
}

func TestCancelBooking_SendsVersion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bookings/BK1/cancel" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["booking_version"] != float64(3) {
			t.Fatalf("booking_version = %v", body["booking_version"])
		}
		_, _ = w.Write([]byte(`{"booking":{"id":"BK1","version":4,"status":"CANCELLED_BY_SELLER","start_at":"2026-07-15T18:30:00Z"}}`))
	})

	booking, err := client.CancelBooking(context.Background(), "BK1", 3)
	if err != nil {
		t.Fatalf("CancelBooking() error = %v", err)
	}
	if !booking.Cancelled() {
		t.Fatal("booking should be cancelled")
	}
}

func TestDoJSON_APIErrorDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"INVALID_VALUE","detail":"start_at is in the past","field":"start_at"}]}`))
	})

	_, err := client.RetrieveBooking(context.Background(), "BK1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if len(apiErr.Errors) != 1 || apiErr.Errors[0].Code != "INVALID_VALUE" {
		t.Fatalf("errors = %+v", apiErr.Errors)
	}
	if details := ErrorDetails(err); len(details) != 1 {
		t.Fatalf("ErrorDetails = %+v", details)
	}
}

func TestDoJSON_RecordsSquareCallMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewToolMetrics(reg)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/bookings/BK1/cancel" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"errors":[{"code":"CONFLICT"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"booking":{"id":"BK1","start_at":"2026-07-15T18:30:00Z"}}`))
	}).WithMetrics(m)

	if _, err := client.RetrieveBooking(context.Background(), "BK1"); err != nil {
		t.Fatalf("RetrieveBooking() error = %v", err)
	}
	if _, err := client.CancelBooking(context.Background(), "BK1", 1); err == nil {
		t.Fatal("expected cancel conflict error")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, fam := range families {
		if fam.GetName() != "barbershop_square_api_calls_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			counts[labels["endpoint"]+"/"+labels["status"]] = metric.GetCounter().GetValue()
		}
	}
	if counts["bookings/200"] != 1 {
		t.Fatalf("bookings/200 count = %v, want 1 (counts: %v)", counts["bookings/200"], counts)
	}
	if counts["bookings/409"] != 1 {
		t.Fatalf("bookings/409 count = %v, want 1 (counts: %v)", counts["bookings/409"], counts)
	}
}

func TestEndpointLabel(t *testing.T) {
	cases := map[string]string{
		"/v2/bookings/BK1/cancel":          "bookings",
		"/v2/bookings?location_id=L1":      "bookings",
		"/v2/customers/search":             "customers",
		"/v2/catalog/list?types=ITEM":      "catalog",
		"/v2/team-members/search":          "team-members",
		"/v2/bookings/availability/search": "bookings",
	}
	for path, want := range cases {
		if got := endpointLabel(path); got != want {
			t.Fatalf("endpointLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDoJSON_InvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"booking":`))
	})
	_, err := client.RetrieveBooking(context.Background(), "BK1")
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
}
