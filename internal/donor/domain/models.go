package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BloodType is one of the eight canonical ABO/Rh groups.
type BloodType string

const (
	APositive  BloodType = "A+"
	ANegative  BloodType = "A-"
	BPositive  BloodType = "B+"
	BNegative  BloodType = "B-"
	ABPositive BloodType = "AB+"
	ABNegative BloodType = "AB-"
	OPositive  BloodType = "O+"
	ONegative  BloodType = "O-"
)

var ErrInvalidBloodType = errors.New("invalid blood type")
var ErrInvalidCoordinates = errors.New("invalid coordinates")
var ErrInvalidPagination = errors.New("invalid pagination")
var ErrInvalidPreferences = errors.New("invalid notification preferences")
var ErrDonorNotFound = errors.New("donor not found")

var canonicalBloodTypes = map[BloodType]struct{}{
	APositive: {}, ANegative: {},
	BPositive: {}, BNegative: {},
	ABPositive: {}, ABNegative: {},
	OPositive: {}, ONegative: {},
}

// Valid reports whether the value is one of the eight canonical groups.
func (b BloodType) Valid() bool {
	_, ok := canonicalBloodTypes[b]
	return ok
}

var signSuffixes = []struct {
	text string
	sign string
}{
	{"POSITIVE", "+"},
	{"NEGATIVE", "-"},
	{"POS", "+"},
	{"NEG", "-"},
	{"+VE", "+"},
	{"-VE", "-"},
}

// ParseBloodType normalizes free-form input ("APOSITIVE", "A_POSITIVE", "a+",
// "O neg") to a canonical BloodType. Unrecognized input is an error, never a
// silent default.
func ParseBloodType(s string) (BloodType, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	raw = strings.NewReplacer(" ", "", "_", "", ".", "").Replace(raw)
	for _, suffix := range signSuffixes {
		if strings.HasSuffix(raw, suffix.text) {
			raw = strings.TrimSuffix(raw, suffix.text) + suffix.sign
			break
		}
	}
	bt := BloodType(raw)
	if !bt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBloodType, s)
	}
	return bt, nil
}

// GeoPoint is a latitude/longitude pair in degrees. JSON payloads carry
// {lat, lng}; storage layers that need [lng, lat] ordering state so at their
// own boundary.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks both coordinates are finite and in range.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: not finite", ErrInvalidCoordinates)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinates, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinates, p.Lng)
	}
	return nil
}

// IsZero reports the [0,0] sentinel used by upstream records for "unset".
func (p GeoPoint) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// NotificationPreferences controls whether and how far a donor wants alerts.
type NotificationPreferences struct {
	SMSEnabled   bool
	EmailEnabled bool
	RadiusKM     float64
}

const (
	DefaultAlertRadiusKM = 10
	MinAlertRadiusKM     = 1
	MaxAlertRadiusKM     = 50
)

// AnyChannelEnabled reports whether the donor can be reached at all.
func (n NotificationPreferences) AnyChannelEnabled() bool {
	return n.SMSEnabled || n.EmailEnabled
}

// Donor is a registered blood donor. EligibleToDonate is a derived cache; the
// source of truth is LastDonationAt plus the waiting-period rule.
type Donor struct {
	ID               uuid.UUID
	Name             string
	BloodType        BloodType
	Location         *GeoPoint
	District         string
	State            string
	Phone            string
	Email            string
	LastDonationAt   *time.Time
	EligibleToDonate bool
	Preferences      NotificationPreferences
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasLocation reports whether the donor has a usable coordinate.
func (d Donor) HasLocation() bool {
	return d.Location != nil && !d.Location.IsZero()
}

// EligibilityStatus is computed fresh from LastDonationAt on every read.
type EligibilityStatus struct {
	Eligible          bool
	Message           string
	NextDonationAt    *time.Time
	DaysUntilEligible int
}

// Repository stores donors. ListDonors returns a snapshot; the matching pass
// does not observe concurrent mutations.
type Repository interface {
	CreateDonor(ctx context.Context, donor Donor) (Donor, error)
	GetDonorByID(ctx context.Context, id uuid.UUID) (Donor, error)
	UpdateDonor(ctx context.Context, donor Donor) (Donor, error)
	SetEligibleToDonate(ctx context.Context, id uuid.UUID, eligible bool) error
	ListDonors(ctx context.Context) ([]Donor, error)
}

// Alert is the request context handed to the notification dispatcher.
type Alert struct {
	BloodType BloodType `json:"blood_type"`
	Location  GeoPoint  `json:"location"`
	Message   string    `json:"message"`
}

// Dispatcher delivers a single donor alert. Delivery transport is outside the
// matching core; failures are per-donor and non-fatal.
type Dispatcher interface {
	Send(ctx context.Context, donor Donor, alert Alert) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
