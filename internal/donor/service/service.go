package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/lifelink/internal/donor/domain"
	"github.com/example/lifelink/internal/donor/match"
	"github.com/example/lifelink/internal/notify"
)

// thalassemiaRadiusKM is the fixed search radius for the urgent notification
// path.
const thalassemiaRadiusKM = 10

// geoOverscan inflates the radius handed to the geo index so that rounding
// differences between Redis and the canonical Haversine never drop a donor
// sitting on the boundary.
const geoOverscan = 1.25

// geoCandidateCap bounds how many candidates the geo index may return.
const geoCandidateCap = 200

// Service coordinates donor matching between handlers, storage, and the
// notification dispatcher.
type Service struct {
	repo        domain.Repository
	dispatcher  domain.Dispatcher
	geo         match.GeoIndex
	clock       domain.Clock
	logger      *zap.Logger
	waitingDays int
	fanout      notify.FanoutConfig
}

// Config carries optional tunables for New.
type Config struct {
	WaitingPeriodDays int
	NotifyTimeout     time.Duration
	NotifyConcurrency int
}

// New constructs a Service. The geo index may be nil, in which case every
// matching pass scans the full donor snapshot.
func New(repo domain.Repository, dispatcher domain.Dispatcher, geo match.GeoIndex, clock domain.Clock, logger *zap.Logger, cfg Config) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WaitingPeriodDays <= 0 {
		cfg.WaitingPeriodDays = match.DefaultWaitingPeriodDays
	}
	return &Service{
		repo:        repo,
		dispatcher:  dispatcher,
		geo:         geo,
		clock:       clock,
		logger:      logger,
		waitingDays: cfg.WaitingPeriodDays,
		fanout:      notify.FanoutConfig{Timeout: cfg.NotifyTimeout, Concurrency: cfg.NotifyConcurrency},
	}
}

// FindRequest is the input for a compatible-donor search.
type FindRequest struct {
	BloodType string
	Location  domain.GeoPoint
	RadiusKM  float64
	Page      int
	Limit     int
}

// MatchedDonor is the privacy-trimmed view of one match. Contact details and
// raw coordinates never cross this boundary.
type MatchedDonor struct {
	Name       string
	BloodType  domain.BloodType
	DistanceKM float64
	District   string
	State      string
}

// Pagination mirrors the page metadata reported to clients.
type Pagination struct {
	CurrentPage int
	TotalPages  int
	TotalDonors int
	HasMore     bool
}

// FindResponse is the result of a compatible-donor search. Zero matches on a
// valid query is a normal outcome, not an error.
type FindResponse struct {
	Donors     []MatchedDonor
	Pagination Pagination
}

// FindCompatibleDonors validates the request, loads the donor snapshot, runs
// the compatibility/distance pipeline, and paginates the sorted result.
func (s *Service) FindCompatibleDonors(ctx context.Context, req FindRequest) (FindResponse, error) {
	start := s.clock.Now()

	recipient, err := domain.ParseBloodType(req.BloodType)
	if err != nil {
		return FindResponse{}, err
	}
	if err := req.Location.Validate(); err != nil {
		return FindResponse{}, err
	}
	page := req.Page
	if page == 0 {
		page = 1
	}
	limit := req.Limit
	if limit == 0 {
		limit = 10
	}

	donors, err := s.repo.ListDonors(ctx)
	if err != nil {
		match.MatchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return FindResponse{}, fmt.Errorf("load donors: %w", err)
	}

	matches := match.FindCompatible(donors, recipient, req.Location, req.RadiusKM)
	paged, err := match.Paginate(matches, page, limit)
	if err != nil {
		return FindResponse{}, err
	}
	match.MatchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	trimmed := make([]MatchedDonor, 0, len(paged.Matches))
	for _, m := range paged.Matches {
		trimmed = append(trimmed, MatchedDonor{
			Name:       m.Donor.Name,
			BloodType:  m.Donor.BloodType,
			DistanceKM: m.DistanceKM,
			District:   m.Donor.District,
			State:      m.Donor.State,
		})
	}

	return FindResponse{
		Donors: trimmed,
		Pagination: Pagination{
			CurrentPage: paged.CurrentPage,
			TotalPages:  paged.TotalPages,
			TotalDonors: paged.TotalDonors,
			HasMore:     paged.HasMore,
		},
	}, nil
}

// EligibilityResult pairs the freshly computed status with the raw last
// donation date for the response payload.
type EligibilityResult struct {
	Status         domain.EligibilityStatus
	LastDonationAt *time.Time
}

// DonorEligibility computes the donor's waiting-window state and writes the
// derived flag back. The persisted flag is a cache; persistence failure is
// logged but does not invalidate the computed answer.
func (s *Service) DonorEligibility(ctx context.Context, donorID uuid.UUID) (EligibilityResult, error) {
	donor, err := s.repo.GetDonorByID(ctx, donorID)
	if err != nil {
		return EligibilityResult{}, err
	}

	status := match.Eligibility(donor.LastDonationAt, s.waitingDays, s.clock.Now())
	if err := s.repo.SetEligibleToDonate(ctx, donorID, status.Eligible); err != nil {
		s.logger.Warn("persist eligibility flag failed",
			zap.String("donor_id", donorID.String()), zap.Error(err))
	}
	return EligibilityResult{Status: status, LastDonationAt: donor.LastDonationAt}, nil
}

// NotifyRequest is the input for the urgent notification path.
type NotifyRequest struct {
	BloodType string
	Location  domain.GeoPoint
}

// NotifyResult reports how many donors matched and how many dispatches
// succeeded. Per-donor delivery status stays in the notification system.
type NotifyResult struct {
	Matched  int
	Notified int
}

// NotifyNearbyDonors alerts compatible, currently eligible donors within the
// fixed radius who opted in. Eligibility is recomputed from LastDonationAt,
// never read from the cached flag. Distances reported and enforced here come
// from the canonical in-process Haversine; the geo index only pre-narrows
// candidates.
func (s *Service) NotifyNearbyDonors(ctx context.Context, req NotifyRequest) (NotifyResult, error) {
	recipient, err := domain.ParseBloodType(req.BloodType)
	if err != nil {
		return NotifyResult{}, err
	}
	if err := req.Location.Validate(); err != nil {
		return NotifyResult{}, err
	}

	donors, err := s.candidateDonors(ctx, req.Location)
	if err != nil {
		return NotifyResult{}, fmt.Errorf("load donors: %w", err)
	}

	now := s.clock.Now()
	var selected []domain.Donor
	for _, m := range match.FindCompatible(donors, recipient, req.Location, thalassemiaRadiusKM) {
		donor := m.Donor
		if !match.Eligibility(donor.LastDonationAt, s.waitingDays, now).Eligible {
			continue
		}
		if !donor.Preferences.AnyChannelEnabled() {
			continue
		}
		prefRadius := donor.Preferences.RadiusKM
		if prefRadius <= 0 {
			prefRadius = domain.DefaultAlertRadiusKM
		}
		if m.DistanceKM > prefRadius {
			continue
		}
		selected = append(selected, donor)
	}

	alert := domain.Alert{
		BloodType: recipient,
		Location:  req.Location,
		Message:   fmt.Sprintf("Urgent: a thalassemia patient near you needs %s blood.", recipient),
	}
	notified := notify.Fanout(ctx, s.dispatcher, s.logger.Named("fanout"), selected, alert, s.fanout)

	return NotifyResult{Matched: len(selected), Notified: notified}, nil
}

// candidateDonors narrows the pool through the geo index when one is
// configured, falling back to a full snapshot on any index failure.
func (s *Service) candidateDonors(ctx context.Context, at domain.GeoPoint) ([]domain.Donor, error) {
	if s.geo == nil {
		return s.repo.ListDonors(ctx)
	}
	ids, err := s.geo.Nearby(ctx, at, thalassemiaRadiusKM*geoOverscan, geoCandidateCap)
	if err != nil {
		s.logger.Warn("geo index lookup failed, scanning full pool", zap.Error(err))
		return s.repo.ListDonors(ctx)
	}
	donors := make([]domain.Donor, 0, len(ids))
	for _, id := range ids {
		donor, err := s.repo.GetDonorByID(ctx, id)
		if err != nil {
			// Index members can lag behind deletions.
			continue
		}
		donors = append(donors, donor)
	}
	return donors, nil
}

// RegisterRequest creates a donor record.
type RegisterRequest struct {
	Name           string
	BloodType      string
	Location       *domain.GeoPoint
	District       string
	State          string
	Phone          string
	Email          string
	LastDonationAt *time.Time
	Preferences    *domain.NotificationPreferences
}

// RegisterDonor validates and stores a new donor, seeding the geo index when
// a location is provided.
func (s *Service) RegisterDonor(ctx context.Context, req RegisterRequest) (domain.Donor, error) {
	bloodType, err := domain.ParseBloodType(req.BloodType)
	if err != nil {
		return domain.Donor{}, err
	}
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return domain.Donor{}, err
		}
	}

	prefs := domain.NotificationPreferences{RadiusKM: domain.DefaultAlertRadiusKM}
	if req.Preferences != nil {
		prefs = *req.Preferences
		if prefs.RadiusKM == 0 {
			prefs.RadiusKM = domain.DefaultAlertRadiusKM
		}
		if prefs.RadiusKM < domain.MinAlertRadiusKM || prefs.RadiusKM > domain.MaxAlertRadiusKM {
			return domain.Donor{}, fmt.Errorf("%w: alert radius must be between %d and %d km",
				domain.ErrInvalidPreferences, domain.MinAlertRadiusKM, domain.MaxAlertRadiusKM)
		}
	}

	now := s.clock.Now()
	donor := domain.Donor{
		ID:             uuid.New(),
		Name:           req.Name,
		BloodType:      bloodType,
		Location:       req.Location,
		District:       req.District,
		State:          req.State,
		Phone:          req.Phone,
		Email:          req.Email,
		LastDonationAt: req.LastDonationAt,
		Preferences:    prefs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	donor.EligibleToDonate = match.Eligibility(donor.LastDonationAt, s.waitingDays, now).Eligible

	created, err := s.repo.CreateDonor(ctx, donor)
	if err != nil {
		return domain.Donor{}, fmt.Errorf("create donor: %w", err)
	}
	s.upsertGeo(ctx, created)
	return created, nil
}

// UpdateProfileRequest mutates donor profile fields; nil pointers leave the
// current value untouched.
type UpdateProfileRequest struct {
	BloodType      *string
	Location       *domain.GeoPoint
	District       *string
	State          *string
	LastDonationAt *time.Time
	Preferences    *domain.NotificationPreferences
}

// UpdateDonorProfile applies a partial profile update, recomputing the derived
// eligibility flag when the last donation date changes and keeping the geo
// index in sync with the location.
func (s *Service) UpdateDonorProfile(ctx context.Context, donorID uuid.UUID, req UpdateProfileRequest) (domain.Donor, error) {
	donor, err := s.repo.GetDonorByID(ctx, donorID)
	if err != nil {
		return domain.Donor{}, err
	}

	if req.BloodType != nil {
		bloodType, err := domain.ParseBloodType(*req.BloodType)
		if err != nil {
			return domain.Donor{}, err
		}
		donor.BloodType = bloodType
	}
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return domain.Donor{}, err
		}
		donor.Location = req.Location
	}
	if req.District != nil {
		donor.District = *req.District
	}
	if req.State != nil {
		donor.State = *req.State
	}
	if req.LastDonationAt != nil {
		donor.LastDonationAt = req.LastDonationAt
	}
	if req.Preferences != nil {
		prefs := *req.Preferences
		if prefs.RadiusKM < domain.MinAlertRadiusKM || prefs.RadiusKM > domain.MaxAlertRadiusKM {
			return domain.Donor{}, fmt.Errorf("%w: alert radius must be between %d and %d km",
				domain.ErrInvalidPreferences, domain.MinAlertRadiusKM, domain.MaxAlertRadiusKM)
		}
		donor.Preferences = prefs
	}

	now := s.clock.Now()
	donor.UpdatedAt = now
	donor.EligibleToDonate = match.Eligibility(donor.LastDonationAt, s.waitingDays, now).Eligible

	updated, err := s.repo.UpdateDonor(ctx, donor)
	if err != nil {
		return domain.Donor{}, err
	}
	if req.Location != nil {
		s.upsertGeo(ctx, updated)
	}
	return updated, nil
}

func (s *Service) upsertGeo(ctx context.Context, donor domain.Donor) {
	if s.geo == nil || !donor.HasLocation() {
		return
	}
	if err := s.geo.Upsert(ctx, donor.ID, *donor.Location); err != nil {
		s.logger.Warn("geo index upsert failed",
			zap.String("donor_id", donor.ID.String()), zap.Error(err))
	}
}
