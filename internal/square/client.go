package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/barbershop-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

const (
	defaultBaseURL = "https://connect.squareup.com"
	defaultTimeout = 15 * time.Second

	apiVersion = "2025-05-21"
)

// Client wraps the Square REST endpoints this server consumes: customers,
// bookings, availability search, locations, catalog, and team members.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	logger      *logging.Logger
	metrics     *metrics.ToolMetrics
}

// NewClient constructs a Square REST client. baseURL overrides the production
// host (sandbox, tests); empty means production.
func NewClient(accessToken, baseURL string, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		logger:      logger,
	}
}

// WithTimeout overrides the HTTP client timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// WithMetrics records every upstream call on the given observer.
func (c *Client) WithMetrics(m *metrics.ToolMetrics) *Client {
	c.metrics = m
	return c
}

// SearchCustomersByPhone finds customers whose phone number exactly matches
// the E.164 representation.
func (c *Client) SearchCustomersByPhone(ctx context.Context, phoneE164 string) ([]Customer, error) {
	body := map[string]any{
		"query": map[string]any{
			"filter": map[string]any{
				"phone_number": map[string]any{"exact": phoneE164},
			},
		},
	}
	var out struct {
		Customers []Customer `json:"customers"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/customers/search", body, &out); err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	return out.Customers, nil
}

// CreateCustomerParams are the fields sent when registering a new customer.
// PhoneNumber must already be in Square's creation format (ten digits, no
// country code for US numbers).
type CreateCustomerParams struct {
	IdempotencyKey string
	GivenName      string
	FamilyName     string
	PhoneNumber    string
	EmailAddress   string
	Note           string
}

// CreateCustomer registers a customer in the directory.
func (c *Client) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	body := map[string]any{
		"idempotency_key": params.IdempotencyKey,
		"given_name":      params.GivenName,
		"family_name":     params.FamilyName,
		"phone_number":    params.PhoneNumber,
	}
	if params.EmailAddress != "" {
		body["email_address"] = params.EmailAddress
	}
	if params.Note != "" {
		body["note"] = params.Note
	}
	var out struct {
		Customer Customer `json:"customer"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/customers", body, &out); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &out.Customer, nil
}

// RetrieveBooking fetches a booking by ID, including its concurrency token.
func (c *Client) RetrieveBooking(ctx context.Context, bookingID string) (*Booking, error) {
	var out struct {
		Booking Booking `json:"booking"`
	}
	path := "/v2/bookings/" + url.PathEscape(bookingID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("retrieve booking %s: %w", bookingID, err)
	}
	return &out.Booking, nil
}

// CreateBookingParams describe a new booking. One segment per service, all
// sharing one team member.
// StartAt is passed through verbatim: malformed times are Square's to
// reject, not ours.
type CreateBookingParams struct {
	IdempotencyKey string
	LocationID     string
	CustomerID     string
	StartAt        string
	CustomerNote   string
	Segments       []AppointmentSegment
}

// CreateBooking writes a booking to the ledger. Creation is atomic on
// Square's side; a failure leaves nothing to roll back.
func (c *Client) CreateBooking(ctx context.Context, params CreateBookingParams) (*Booking, error) {
	body := map[string]any{
		"idempotency_key": params.IdempotencyKey,
		"booking": map[string]any{
			"location_id":          params.LocationID,
			"customer_id":          params.CustomerID,
			"start_at":             params.StartAt,
			"customer_note":        params.CustomerNote,
			"appointment_segments": params.Segments,
		},
	}
	var out struct {
		Booking Booking `json:"booking"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/bookings", body, &out); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return &out.Booking, nil
}

// UpdateBookingParams carry only the fields Square accepts on update;
// submitting read-only fields is a known Square error mode.
type UpdateBookingParams struct {
	Version      int
	LocationID   string
	CustomerID   string
	StartAt      string
	CustomerNote string
	Segments     []AppointmentSegment
}

// UpdateBooking rewrites a booking under optimistic concurrency.
func (c *Client) UpdateBooking(ctx context.Context, bookingID string, params UpdateBookingParams) (*Booking, error) {
	body := map[string]any{
		"booking": map[string]any{
			"version":              params.Version,
			"location_id":          params.LocationID,
			"customer_id":          params.CustomerID,
			"start_at":             params.StartAt,
			"customer_note":        params.CustomerNote,
			"appointment_segments": params.Segments,
		},
	}
	var out struct {
		Booking Booking `json:"booking"`
	}
	path := "/v2/bookings/" + url.PathEscape(bookingID)
	if err := c.doJSON(ctx, http.MethodPut, path, body, &out); err != nil {
		return nil, fmt.Errorf("update booking %s: %w", bookingID, err)
	}
	return &out.Booking, nil
}

// CancelBooking transitions a booking to a cancelled status. version is the
// booking's current concurrency token.
func (c *Client) CancelBooking(ctx context.Context, bookingID string, version int) (*Booking, error) {
	body := map[string]any{"booking_version": version}
	var out struct {
		Booking Booking `json:"booking"`
	}
	path := "/v2/bookings/" + url.PathEscape(bookingID) + "/cancel"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("cancel booking %s: %w", bookingID, err)
	}
	return &out.Booking, nil
}

// ListBookingsParams filter the booking ledger. Zero times mean unbounded.
type ListBookingsParams struct {
	LocationID   string
	TeamMemberID string
	CustomerID   string
	StartAtMin   time.Time
	StartAtMax   time.Time
}

// ListBookings returns bookings in a time range, cancelled ones included.
func (c *Client) ListBookings(ctx context.Context, params ListBookingsParams) ([]Booking, error) {
	q := url.Values{}
	if params.LocationID != "" {
		q.Set("location_id", params.LocationID)
	}
	if params.TeamMemberID != "" {
		q.Set("team_member_id", params.TeamMemberID)
	}
	if params.CustomerID != "" {
		q.Set("customer_id", params.CustomerID)
	}
	if !params.StartAtMin.IsZero() {
		q.Set("start_at_min", params.StartAtMin.UTC().Format(time.RFC3339))
	}
	if !params.StartAtMax.IsZero() {
		q.Set("start_at_max", params.StartAtMax.UTC().Format(time.RFC3339))
	}
	var out struct {
		Bookings []Booking `json:"bookings"`
	}
	path := "/v2/bookings?" + q.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out.Bookings, nil
}

// AvailabilityQuery searches open slots for a service in a window.
type AvailabilityQuery struct {
	LocationID         string
	StartAt            time.Time
	EndAt              time.Time
	ServiceVariationID string
	TeamMemberID       string
}

// SearchAvailability returns candidate slots from Square's search. Candidates
// are advisory; callers must still reconcile against the booking ledger.
func (c *Client) SearchAvailability(ctx context.Context, query AvailabilityQuery) ([]Availability, error) {
	segmentFilter := map[string]any{
		"service_variation_id": query.ServiceVariationID,
	}
	anyOf := []string{}
	if query.TeamMemberID != "" {
		anyOf = append(anyOf, query.TeamMemberID)
	}
	segmentFilter["team_member_id_filter"] = map[string]any{"any": anyOf}

	body := map[string]any{
		"query": map[string]any{
			"filter": map[string]any{
				"location_id": query.LocationID,
				"start_at_range": map[string]any{
					"start_at": query.StartAt.UTC().Format(time.RFC3339),
					"end_at":   query.EndAt.UTC().Format(time.RFC3339),
				},
				"segment_filters": []any{segmentFilter},
			},
		},
	}
	var out struct {
		Availabilities []Availability `json:"availabilities"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/bookings/availability/search", body, &out); err != nil {
		return nil, fmt.Errorf("search availability: %w", err)
	}
	return out.Availabilities, nil
}

// RetrieveLocation fetches the shop's Square location record.
func (c *Client) RetrieveLocation(ctx context.Context, locationID string) (*Location, error) {
	var out struct {
		Location Location `json:"location"`
	}
	path := "/v2/locations/" + url.PathEscape(locationID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("retrieve location %s: %w", locationID, err)
	}
	return &out.Location, nil
}

// ListCatalogItems lists catalog ITEM objects with their variations.
func (c *Client) ListCatalogItems(ctx context.Context) ([]CatalogItem, error) {
	var out struct {
		Objects []CatalogItem `json:"objects"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v2/catalog/list?types=ITEM", nil, &out); err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	return out.Objects, nil
}

// SearchActiveTeamMembers lists the active staff roster for a location.
func (c *Client) SearchActiveTeamMembers(ctx context.Context, locationID string) ([]TeamMember, error) {
	body := map[string]any{
		"query": map[string]any{
			"filter": map[string]any{
				"location_ids": []string{locationID},
				"status":       "ACTIVE",
			},
		},
	}
	var out struct {
		TeamMembers []TeamMember `json:"team_members"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/team-members/search", body, &out); err != nil {
		return nil, fmt.Errorf("search team members: %w", err)
	}
	return out.TeamMembers, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Square-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveSquareCall(endpointLabel(path), "error")
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveSquareCall(endpointLabel(path), strconv.Itoa(resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		var parsed struct {
			Errors []ErrorDetail `json:"errors"`
		}
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			apiErr.Errors = parsed.Errors
		}
		c.logger.Warn("square API non-2xx response",
			"status", resp.StatusCode,
			"method", method,
			"path", path,
			"errors", apiErr.Error(),
		)
		return apiErr
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// endpointLabel collapses a request path to its API family, keeping the
// per-call metric low-cardinality: "/v2/bookings/BK1/cancel" -> "bookings".
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.SplitN(strings.TrimPrefix(path, "/v2/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "unknown"
	}
	return parts[0]
}
