// Package handlers implements the HTTP tool endpoints invoked by the voice
// agent. Every tool is a POST with a JSON body; business outcomes, including
// conflicts and empty lookups, are HTTP 200 with success flags in the body,
// so the agent can read them. Only malformed requests (400) and upstream
// failures (500) use error status codes.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/barbershop-ai-platform/internal/availability"
	"github.com/wolfman30/barbershop-ai-platform/internal/bookings"
	"github.com/wolfman30/barbershop-ai-platform/internal/customers"
	"github.com/wolfman30/barbershop-ai-platform/internal/inquiry"
	"github.com/wolfman30/barbershop-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/barbershop-ai-platform/internal/square"
	"github.com/wolfman30/barbershop-ai-platform/internal/timeutil"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

// StringList tolerates both JSON arrays and comma-separated strings. The
// voice platform's tool schema cannot always express arrays, so agents send
// "a, b, c" instead of ["a","b","c"].
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*l = out
	return nil
}

// ToolsHandler serves the /tools endpoints.
type ToolsHandler struct {
	customers           *customers.Resolver
	availability        *availability.Engine
	bookings            *bookings.Engine
	inquiry             *inquiry.Service
	defaultTeamMemberID string
	metrics             *metrics.ToolMetrics
	logger              *logging.Logger
	now                 func() time.Time
}

// ToolsHandlerConfig configures the ToolsHandler.
type ToolsHandlerConfig struct {
	Customers           *customers.Resolver
	Availability        *availability.Engine
	Bookings            *bookings.Engine
	Inquiry             *inquiry.Service
	DefaultTeamMemberID string
	Metrics             *metrics.ToolMetrics
	Logger              *logging.Logger
}

// NewToolsHandler creates a new ToolsHandler.
func NewToolsHandler(cfg ToolsHandlerConfig) *ToolsHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &ToolsHandler{
		customers:           cfg.Customers,
		availability:        cfg.Availability,
		bookings:            cfg.Bookings,
		inquiry:             cfg.Inquiry,
		defaultTeamMemberID: cfg.DefaultTeamMemberID,
		metrics:             cfg.Metrics,
		logger:              cfg.Logger.Component("tools"),
		now:                 time.Now,
	}
}

// GetCurrentDateTime anchors the agent's relative-date language ("tomorrow",
// "Thursday") to the shop's civil calendar.
func (h *ToolsHandler) GetCurrentDateTime(w http.ResponseWriter, r *http.Request) {
	defer h.observe("getCurrentDateTime", h.now())
	now := h.now()
	dc := timeutil.CurrentContext(now)

	h.respond(w, "getCurrentDateTime", map[string]any{
		"success": true,
		"current": map[string]any{
			"dateTime": dc.Now,
			"timezone": dc.Timezone,
			"utc":      now.UTC().Format(time.RFC3339),
		},
		"context": map[string]any{
			"tomorrow":     dc.Tomorrow,
			"nextThursday": dc.NextThursday,
			"message": "Today is " + dc.Now + ". When the customer says 'thursday', they mean " +
				dc.NextThursday + ". When they say 'tomorrow', they mean " + dc.Tomorrow + ".",
		},
	})
}

// GetAvailability answers date and exact-time availability questions.
func (h *ToolsHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	defer h.observe("getAvailability", h.now())
	var req struct {
		StartDate          string `json:"startDate"`
		DateTime           string `json:"datetime"`
		ServiceVariationID string `json:"serviceVariationId"`
		TeamMemberID       string `json:"teamMemberId"`
	}
	if !h.decode(w, r, "getAvailability", &req) {
		return
	}

	res, err := h.availability.GetAvailability(r.Context(), availability.Query{
		StartDate:          req.StartDate,
		DateTime:           req.DateTime,
		ServiceVariationID: req.ServiceVariationID,
		TeamMemberID:       req.TeamMemberID,
	})
	if err != nil {
		h.serverError(w, "getAvailability", err)
		return
	}
	h.respond(w, "getAvailability", res)
}

// CreateBooking resolves the caller in the customer directory and books the
// requested services. serviceVariationIds accepts an array or a CSV string;
// serviceVariationId remains for single-service callers.
func (h *ToolsHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	defer h.observe("createBooking", h.now())
	var req struct {
		CustomerName        string     `json:"customerName"`
		CustomerPhone       string     `json:"customerPhone"`
		CustomerEmail       string     `json:"customerEmail"`
		StartTime           string     `json:"startTime"`
		ServiceVariationID  string     `json:"serviceVariationId"`
		ServiceVariationIDs StringList `json:"serviceVariationIds"`
		TeamMemberID        string     `json:"teamMemberId"`
	}
	if !h.decode(w, r, "createBooking", &req) {
		return
	}
	if req.CustomerName == "" || req.CustomerPhone == "" || req.StartTime == "" {
		h.badRequest(w, "createBooking", "Missing required fields: customerName, customerPhone, startTime")
		return
	}

	serviceIDs := []string(req.ServiceVariationIDs)
	if len(serviceIDs) == 0 && req.ServiceVariationID != "" {
		serviceIDs = []string{req.ServiceVariationID}
	}
	if len(serviceIDs) == 0 {
		h.badRequest(w, "createBooking", "Missing required field: serviceVariationId or serviceVariationIds (array or comma-separated string)")
		return
	}

	teamMemberID := req.TeamMemberID
	if teamMemberID == "" {
		teamMemberID = h.defaultTeamMemberID
	}

	resolution, err := h.customers.FindOrCreate(r.Context(), req.CustomerName, req.CustomerPhone, req.CustomerEmail)
	if err != nil {
		h.serverError(w, "createBooking", err)
		return
	}

	result, err := h.bookings.Create(r.Context(), bookings.CreateParams{
		CustomerID:          resolution.CustomerID,
		StartTime:           req.StartTime,
		ServiceVariationIDs: serviceIDs,
		TeamMemberID:        teamMemberID,
	})
	if err != nil {
		h.serverError(w, "createBooking", err)
		return
	}

	h.respond(w, "createBooking", map[string]any{
		"success":          true,
		"booking":          result.Booking,
		"bookingId":        result.Booking.ID,
		"duration_minutes": result.DurationMinutes,
		"service_count":    result.ServiceCount,
		"services":         result.ServiceNames,
		"message": fmt.Sprintf("Appointment created successfully for %s. Total duration: %d minutes (%s)",
			req.CustomerName, result.DurationMinutes, strings.Join(result.ServiceNames, ", ")),
		"newCustomer": resolution.IsNewCustomer,
	})
}

// AddServicesToBooking extends an existing booking with named services.
func (h *ToolsHandler) AddServicesToBooking(w http.ResponseWriter, r *http.Request) {
	defer h.observe("addServicesToBooking", h.now())
	var req struct {
		BookingID    string     `json:"bookingId"`
		ServiceNames StringList `json:"serviceNames"`
	}
	if !h.decode(w, r, "addServicesToBooking", &req) {
		return
	}
	if req.BookingID == "" {
		h.badRequest(w, "addServicesToBooking", "Missing required field: bookingId")
		return
	}
	if len(req.ServiceNames) == 0 {
		h.badRequest(w, "addServicesToBooking", "Missing required field: serviceNames (must be array or comma-separated string)")
		return
	}

	res, err := h.bookings.AddServices(r.Context(), req.BookingID, req.ServiceNames)
	if err != nil {
		var invalidErr *bookings.InvalidServiceNamesError
		if errors.As(err, &invalidErr) {
			h.badRequest(w, "addServicesToBooking", invalidErr.Error())
			return
		}
		h.serverError(w, "addServicesToBooking", err)
		return
	}
	if res.HasConflict {
		h.metrics.ObserveConflict("addServicesToBooking")
	}
	h.respond(w, "addServicesToBooking", res)
}

// RescheduleBooking moves a booking to a new time.
func (h *ToolsHandler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	defer h.observe("rescheduleBooking", h.now())
	var req struct {
		BookingID    string `json:"bookingId"`
		NewStartTime string `json:"newStartTime"`
	}
	if !h.decode(w, r, "rescheduleBooking", &req) {
		return
	}
	if req.BookingID == "" || req.NewStartTime == "" {
		h.badRequest(w, "rescheduleBooking", "Missing required fields: bookingId, newStartTime")
		return
	}

	res, err := h.bookings.Reschedule(r.Context(), req.BookingID, req.NewStartTime)
	if err != nil {
		h.serverError(w, "rescheduleBooking", err)
		return
	}
	if res.HasConflict {
		h.metrics.ObserveConflict("rescheduleBooking")
	}
	h.respond(w, "rescheduleBooking", res)
}

// CancelBooking cancels a booking by ID.
func (h *ToolsHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	defer h.observe("cancelBooking", h.now())
	var req struct {
		BookingID string `json:"bookingId"`
	}
	if !h.decode(w, r, "cancelBooking", &req) {
		return
	}
	if req.BookingID == "" {
		h.badRequest(w, "cancelBooking", "Missing required field: bookingId")
		return
	}

	res, err := h.bookings.Cancel(r.Context(), req.BookingID)
	if err != nil {
		h.serverError(w, "cancelBooking", err)
		return
	}
	h.respond(w, "cancelBooking", res)
}

// LookupBooking finds a caller's bookings by phone number. Cancelled bookings
// stay hidden from the agent so it never offers to reschedule one.
func (h *ToolsHandler) LookupBooking(w http.ResponseWriter, r *http.Request) {
	defer h.observe("lookupBooking", h.now())
	var req struct {
		CustomerPhone string `json:"customerPhone"`
		CustomerName  string `json:"customerName"`
	}
	if !h.decode(w, r, "lookupBooking", &req) {
		return
	}
	if req.CustomerPhone == "" {
		h.badRequest(w, "lookupBooking", "Missing required field: customerPhone")
		return
	}

	customer, err := h.customers.FindByPhone(r.Context(), req.CustomerPhone)
	if err != nil {
		h.serverError(w, "lookupBooking", err)
		return
	}
	if customer == nil {
		h.respond(w, "lookupBooking", map[string]any{
			"success": true,
			"found":   false,
			"message": "No customer found with that phone number",
		})
		return
	}

	lookup, err := h.bookings.LookupCustomerBookings(r.Context(), customer.ID)
	if err != nil {
		h.serverError(w, "lookupBooking", err)
		return
	}

	h.logger.Info("booking lookup",
		"customer_id", customer.ID,
		"active", len(lookup.ActiveBookings),
		"completed", len(lookup.CompletedBookings),
		"cancelled_hidden", len(lookup.CancelledBookings),
	)
	h.respond(w, "lookupBooking", map[string]any{
		"success":           true,
		"found":             true,
		"customer":          customerView(customer),
		"activeBookings":    lookup.ActiveBookings,
		"completedBookings": lookup.CompletedBookings,
		"activeCount":       len(lookup.ActiveBookings),
		"completedCount":    len(lookup.CompletedBookings),
		"totalBookings":     lookup.TotalCount,
		"message":           lookup.Message,
	})
}

// LookupCustomer identifies a caller by phone number, without bookings.
func (h *ToolsHandler) LookupCustomer(w http.ResponseWriter, r *http.Request) {
	defer h.observe("lookupCustomer", h.now())
	var req struct {
		CustomerPhone string `json:"customerPhone"`
	}
	if !h.decode(w, r, "lookupCustomer", &req) {
		return
	}
	if req.CustomerPhone == "" {
		h.badRequest(w, "lookupCustomer", "Missing required field: customerPhone")
		return
	}

	customer, err := h.customers.FindByPhone(r.Context(), req.CustomerPhone)
	if err != nil {
		h.serverError(w, "lookupCustomer", err)
		return
	}
	if customer == nil {
		h.respond(w, "lookupCustomer", map[string]any{"success": true, "found": false})
		return
	}
	h.respond(w, "lookupCustomer", map[string]any{
		"success":  true,
		"found":    true,
		"customer": customerView(customer),
	})
}

// GeneralInquiry answers hours, pricing, and staff questions.
func (h *ToolsHandler) GeneralInquiry(w http.ResponseWriter, r *http.Request) {
	defer h.observe("generalInquiry", h.now())
	var req struct {
		InquiryType string `json:"inquiryType"`
	}
	if !h.decode(w, r, "generalInquiry", &req) {
		return
	}

	res, err := h.inquiry.Answer(r.Context(), req.InquiryType)
	if err != nil {
		h.serverError(w, "generalInquiry", err)
		return
	}
	h.respond(w, "generalInquiry", res)
}

// Health reports liveness.
func (h *ToolsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func customerView(c *square.Customer) map[string]any {
	return map[string]any{
		"id":           c.ID,
		"givenName":    c.GivenName,
		"familyName":   c.FamilyName,
		"fullName":     strings.TrimSpace(c.GivenName + " " + c.FamilyName),
		"phoneNumber":  c.PhoneNumber,
		"emailAddress": c.EmailAddress,
	}
}

func (h *ToolsHandler) decode(w http.ResponseWriter, r *http.Request, tool string, dest any) bool {
	if r.Body == nil {
		h.badRequest(w, tool, "missing request body")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.badRequest(w, tool, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// Exactly one invocation outcome is recorded per request: respond,
// badRequest, and serverError are terminal and mutually exclusive.
func (h *ToolsHandler) respond(w http.ResponseWriter, tool string, body any) {
	h.metrics.ObserveInvocation(tool, "success")
	writeJSON(w, http.StatusOK, body)
}

func (h *ToolsHandler) badRequest(w http.ResponseWriter, tool, msg string) {
	h.metrics.ObserveInvocation(tool, "bad_request")
	writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": msg})
}

// serverError reports an upstream failure, attaching the platform's
// structured error detail when present so the agent can explain the refusal.
func (h *ToolsHandler) serverError(w http.ResponseWriter, tool string, err error) {
	h.logger.Error(tool+" failed", "error", err)
	h.metrics.ObserveInvocation(tool, "error")
	body := map[string]any{"success": false, "error": err.Error()}
	if details := square.ErrorDetails(err); len(details) > 0 {
		body["details"] = details
	} else {
		body["details"] = []square.ErrorDetail{}
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

func (h *ToolsHandler) observe(tool string, start time.Time) {
	h.metrics.ObserveLatency(tool, h.now().Sub(start).Seconds())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
