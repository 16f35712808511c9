// Package inquiry answers open-ended questions about the shop: hours and
// location, the service menu with prices, and the staff roster. Everything
// here is a read of slow-moving platform data, so responses are cached
// briefly in Redis when a cache is configured.
package inquiry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-ai-platform/internal/square"
	"github.com/wolfman30/barbershop-ai-platform/internal/timeutil"
	"github.com/wolfman30/barbershop-ai-platform/pkg/logging"
)

var inquiryTracer = otel.Tracer("barbershop.internal.inquiry")

// DefaultCacheTTL bounds how stale a cached section may be served.
const DefaultCacheTTL = 5 * time.Minute

// platform is the slice of the Square client the service needs.
type platform interface {
	RetrieveLocation(ctx context.Context, locationID string) (*square.Location, error)
	ListCatalogItems(ctx context.Context) ([]square.CatalogItem, error)
	SearchActiveTeamMembers(ctx context.Context, locationID string) ([]square.TeamMember, error)
}

// Service serves general inquiries. cache may be nil, in which case every
// call goes to the platform.
type Service struct {
	platform   platform
	cache      *redis.Client
	ttl        time.Duration
	locationID string
	logger     *logging.Logger
}

// NewService constructs an inquiry service.
func NewService(p platform, cache *redis.Client, ttl time.Duration, locationID string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		platform:   p,
		cache:      cache,
		ttl:        ttl,
		locationID: locationID,
		logger:     logger.Component("inquiry"),
	}
}

// LocationInfo is the hours-and-location section.
type LocationInfo struct {
	BusinessHours json.RawMessage `json:"businessHours"`
	Timezone      string          `json:"timezone"`
	LocationName  string          `json:"locationName,omitempty"`
	Address       json.RawMessage `json:"address,omitempty"`
	PhoneNumber   string          `json:"phoneNumber,omitempty"`
}

// VariationInfo is one priced variation of a service, with the price already
// converted from integer cents to a decimal string.
type VariationInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Price           string `json:"price,omitempty"`
	Currency        string `json:"currency"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
}

// ServiceInfo is one catalog item with its variations.
type ServiceInfo struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Variations  []VariationInfo `json:"variations"`
}

// StaffInfo is one active team member.
type StaffInfo struct {
	ID           string `json:"id"`
	GivenName    string `json:"givenName,omitempty"`
	FamilyName   string `json:"familyName,omitempty"`
	FullName     string `json:"fullName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	IsOwner      bool   `json:"isOwner"`
}

// Result carries whichever sections the inquiry type selected. A section that
// fails reports its error inline; the other sections still come back.
type Result struct {
	Success bool `json:"success"`

	BusinessHours      json.RawMessage `json:"businessHours,omitempty"`
	Timezone           string          `json:"timezone,omitempty"`
	LocationName       string          `json:"locationName,omitempty"`
	Address            json.RawMessage `json:"address,omitempty"`
	PhoneNumber        string          `json:"phoneNumber,omitempty"`
	BusinessHoursError string          `json:"businessHoursError,omitempty"`

	Services      []ServiceInfo `json:"services,omitempty"`
	ServicesCount int           `json:"servicesCount,omitempty"`
	ServicesError string        `json:"servicesError,omitempty"`

	TeamMembers      []StaffInfo `json:"teamMembers,omitempty"`
	TeamMembersCount int         `json:"teamMembersCount,omitempty"`
	TeamMembersError string      `json:"teamMembersError,omitempty"`
}

// Answer resolves an inquiry. An empty inquiryType returns every section;
// an unrecognized one returns none, which the agent reads as "nothing to
// report".
func (s *Service) Answer(ctx context.Context, inquiryType string) (*Result, error) {
	ctx, span := inquiryTracer.Start(ctx, "inquiry.answer")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.inquiry_type", inquiryType))

	all := inquiryType == ""
	result := &Result{Success: true}

	if all || inquiryType == "hours" || inquiryType == "location" {
		info, err := s.locationSection(ctx)
		if err != nil {
			s.logger.Warn("location section failed", "error", err)
			result.BusinessHoursError = err.Error()
		} else {
			result.BusinessHours = info.BusinessHours
			result.Timezone = info.Timezone
			result.LocationName = info.LocationName
			result.Address = info.Address
			result.PhoneNumber = info.PhoneNumber
		}
	}

	if all || inquiryType == "services" || inquiryType == "pricing" {
		services, err := s.servicesSection(ctx)
		if err != nil {
			s.logger.Warn("services section failed", "error", err)
			result.ServicesError = err.Error()
		} else {
			result.Services = services
			result.ServicesCount = len(services)
		}
	}

	if all || inquiryType == "staff" || inquiryType == "barbers" || inquiryType == "team" {
		staff, err := s.staffSection(ctx)
		if err != nil {
			s.logger.Warn("staff section failed", "error", err)
			result.TeamMembersError = err.Error()
		} else {
			result.TeamMembers = staff
			result.TeamMembersCount = len(staff)
		}
	}

	return result, nil
}

func (s *Service) locationSection(ctx context.Context) (*LocationInfo, error) {
	var info LocationInfo
	err := s.cached(ctx, "location", &info, func() (any, error) {
		loc, err := s.platform.RetrieveLocation(ctx, s.locationID)
		if err != nil {
			return nil, err
		}
		hours := loc.BusinessHours
		if len(hours) == 0 {
			hours = json.RawMessage(`{}`)
		}
		tz := loc.Timezone
		if tz == "" {
			tz = timeutil.ZoneName
		}
		return &LocationInfo{
			BusinessHours: hours,
			Timezone:      tz,
			LocationName:  loc.Name,
			Address:       loc.Address,
			PhoneNumber:   loc.PhoneNumber,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Service) servicesSection(ctx context.Context) ([]ServiceInfo, error) {
	var services []ServiceInfo
	err := s.cached(ctx, "services", &services, func() (any, error) {
		items, err := s.platform.ListCatalogItems(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]ServiceInfo, 0, len(items))
		for _, item := range items {
			info := ServiceInfo{
				ID:          item.ID,
				Name:        item.ItemData.Name,
				Description: item.ItemData.Description,
				Variations:  make([]VariationInfo, 0, len(item.ItemData.Variations)),
			}
			for _, v := range item.ItemData.Variations {
				vi := VariationInfo{
					ID:       v.ID,
					Name:     v.ItemVariationData.Name,
					Currency: "USD",
				}
				if pm := v.ItemVariationData.PriceMoney; pm != nil {
					vi.Price = formatMajorUnits(pm.Amount)
					if pm.Currency != "" {
						vi.Currency = pm.Currency
					}
				}
				if ms := v.ItemVariationData.ServiceDuration; ms > 0 {
					vi.DurationMinutes = int(time.Duration(ms) * time.Millisecond / time.Minute)
				}
				info.Variations = append(info.Variations, vi)
			}
			out = append(out, info)
		}
		return out, nil
	})
	return services, err
}

func (s *Service) staffSection(ctx context.Context) ([]StaffInfo, error) {
	var staff []StaffInfo
	err := s.cached(ctx, "staff", &staff, func() (any, error) {
		members, err := s.platform.SearchActiveTeamMembers(ctx, s.locationID)
		if err != nil {
			return nil, err
		}
		out := make([]StaffInfo, 0, len(members))
		for _, m := range members {
			out = append(out, StaffInfo{
				ID:           m.ID,
				GivenName:    m.GivenName,
				FamilyName:   m.FamilyName,
				FullName:     strings.TrimSpace(m.GivenName + " " + m.FamilyName),
				EmailAddress: m.EmailAddress,
				PhoneNumber:  m.PhoneNumber,
				IsOwner:      m.IsOwner,
			})
		}
		return out, nil
	})
	return staff, err
}

// cached is a read-through: serve the section from Redis when present, else
// load it and write it back with the TTL. Cache failures degrade to a direct
// platform read.
func (s *Service) cached(ctx context.Context, section string, dest any, load func() (any, error)) error {
	key := "inquiry:" + section

	if s.cache != nil {
		data, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			if uerr := json.Unmarshal(data, dest); uerr == nil {
				return nil
			}
			s.logger.Warn("corrupt inquiry cache entry, reloading", "key", key)
		} else if err != redis.Nil {
			s.logger.Warn("inquiry cache read failed", "key", key, "error", err)
		}
	}

	fresh, err := load()
	if err != nil {
		return err
	}
	data, err := json.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("inquiry: marshal %s section: %w", section, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("inquiry: decode %s section: %w", section, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warn("inquiry cache write failed", "key", key, "error", err)
		}
	}
	return nil
}

// formatMajorUnits renders integer cents as a decimal dollar string.
func formatMajorUnits(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}
