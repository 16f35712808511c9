// Package customers resolves callers against the Square customer directory.
package customers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/barbershop-ai-platform/internal/phone"
	"github.com/wolfman30/barbershop-ai-platform/internal/square"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

// directory is the slice of the Square client the resolver needs.
type directory interface {
	SearchCustomersByPhone(ctx context.Context, phoneE164 string) ([]square.Customer, error)
	CreateCustomer(ctx context.Context, params square.CreateCustomerParams) (*square.Customer, error)
}

// Resolver finds or creates customers by phone number. It owns the
// search-vs-create phone format duality: Square searches want E.164, customer
// creation wants bare ten digits.
type Resolver struct {
	dir    directory
	logger *logging.Logger
	now    func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(dir directory, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{dir: dir, logger: logger.Component("customers"), now: time.Now}
}

// Resolution is the outcome of FindOrCreate.
type Resolution struct {
	CustomerID    string
	IsNewCustomer bool
}

// FindByPhone returns the first directory match for a phone number, or nil
// when none exists. The directory search has no ambiguity handling; first
// result wins.
func (r *Resolver) FindByPhone(ctx context.Context, rawPhone string) (*square.Customer, error) {
	for _, format := range phone.SearchFormats(rawPhone) {
		matches, err := r.dir.SearchCustomersByPhone(ctx, format)
		if err != nil {
			return nil, fmt.Errorf("find customer by phone: %w", err)
		}
		if len(matches) > 0 {
			return &matches[0], nil
		}
	}
	return nil, nil
}

// FindOrCreate returns the existing customer for a phone number, or creates
// one. Customers are created once per unique phone number and never updated
// by this system afterwards.
func (r *Resolver) FindOrCreate(ctx context.Context, name, rawPhone, email string) (*Resolution, error) {
	existing, err := r.FindByPhone(ctx, rawPhone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		r.logger.Info("found existing customer", "customer_id", existing.ID)
		return &Resolution{CustomerID: existing.ID}, nil
	}

	given, family := splitName(name)
	normalized := phone.Normalize(rawPhone)
	created, err := r.dir.CreateCustomer(ctx, square.CreateCustomerParams{
		IdempotencyKey: uuid.NewString(),
		GivenName:      given,
		FamilyName:     family,
		PhoneNumber:    phone.ForCreation(normalized),
		EmailAddress:   email,
		Note:           fmt.Sprintf("First booking: Phone Booking (ElevenLabs AI) on %s", r.now().Format("1/2/2006")),
	})
	if err != nil {
		r.logger.Error("customer creation failed", "phone", normalized, "name", name, "error", err)
		return nil, fmt.Errorf("create customer: %w", err)
	}
	r.logger.Info("created new customer", "customer_id", created.ID)
	return &Resolution{CustomerID: created.ID, IsNewCustomer: true}, nil
}

func splitName(name string) (given, family string) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
