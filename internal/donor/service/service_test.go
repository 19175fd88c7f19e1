package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/lifelink/internal/donor/domain"
	"github.com/example/lifelink/internal/donor/repository"
	"github.com/example/lifelink/internal/donor/service"
)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type stubDispatcher struct {
	mu      sync.Mutex
	sent    []domain.Donor
	failFor map[uuid.UUID]bool
}

func (s *stubDispatcher) Send(_ context.Context, donor domain.Donor, _ domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[donor.ID] {
		return errors.New("simulated dispatch outage")
	}
	s.sent = append(s.sent, donor)
	return nil
}

type stubGeoIndex struct {
	ids []uuid.UUID
	err error
}

func (g *stubGeoIndex) Upsert(context.Context, uuid.UUID, domain.GeoPoint) error { return nil }
func (g *stubGeoIndex) Remove(context.Context, uuid.UUID) error                  { return nil }
func (g *stubGeoIndex) Nearby(context.Context, domain.GeoPoint, float64, int) ([]uuid.UUID, error) {
	return g.ids, g.err
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
var searchAt = domain.GeoPoint{Lat: 28.7041, Lng: 77.1025}

func newService(t *testing.T, dispatcher domain.Dispatcher) (*service.Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	svc := service.New(repo, dispatcher, nil, stubClock{t: now}, nil, service.Config{})
	return svc, repo
}

func seedDonor(t *testing.T, repo *repository.MemoryRepository, name string, bloodType domain.BloodType, offsetKM float64, mutate func(*domain.Donor)) domain.Donor {
	t.Helper()
	point := domain.GeoPoint{Lat: searchAt.Lat + offsetKM*0.009, Lng: searchAt.Lng}
	donor := domain.Donor{
		ID:        uuid.New(),
		Name:      name,
		BloodType: bloodType,
		Location:  &point,
		District:  "Central",
		State:     "Delhi",
		Phone:     "5550100",
		Email:     name + "@example.com",
		Preferences: domain.NotificationPreferences{
			SMSEnabled: true,
			RadiusKM:   domain.DefaultAlertRadiusKM,
		},
	}
	if mutate != nil {
		mutate(&donor)
	}
	created, err := repo.CreateDonor(context.Background(), donor)
	require.NoError(t, err)
	return created
}

func TestFindCompatibleDonorsFiltersSortsAndTrims(t *testing.T) {
	svc, repo := newService(t, &stubDispatcher{})
	seedDonor(t, repo, "near-o-neg", domain.ONegative, 2, nil)
	seedDonor(t, repo, "mid-a-pos", domain.APositive, 5, nil)
	seedDonor(t, repo, "incompatible-b-pos", domain.BPositive, 3, nil)
	seedDonor(t, repo, "far-a-neg", domain.ANegative, 15, nil)

	resp, err := svc.FindCompatibleDonors(context.Background(), service.FindRequest{
		BloodType: "a positive",
		Location:  searchAt,
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Pagination.TotalDonors)
	require.Equal(t, 1, resp.Pagination.CurrentPage)
	require.Equal(t, 1, resp.Pagination.TotalPages)
	require.False(t, resp.Pagination.HasMore)

	require.Len(t, resp.Donors, 2)
	require.Equal(t, "near-o-neg", resp.Donors[0].Name)
	require.Equal(t, "mid-a-pos", resp.Donors[1].Name)
	require.Less(t, resp.Donors[0].DistanceKM, resp.Donors[1].DistanceKM)
	require.Equal(t, "Central", resp.Donors[0].District)
	require.Equal(t, "Delhi", resp.Donors[0].State)
}

func TestFindCompatibleDonorsEmptyResultIsSuccess(t *testing.T) {
	svc, _ := newService(t, &stubDispatcher{})
	resp, err := svc.FindCompatibleDonors(context.Background(), service.FindRequest{
		BloodType: "O-",
		Location:  searchAt,
	})
	require.NoError(t, err)
	require.Zero(t, resp.Pagination.TotalDonors)
	require.Empty(t, resp.Donors)
}

func TestFindCompatibleDonorsValidation(t *testing.T) {
	svc, _ := newService(t, &stubDispatcher{})
	ctx := context.Background()

	_, err := svc.FindCompatibleDonors(ctx, service.FindRequest{BloodType: "XYZ", Location: searchAt})
	require.ErrorIs(t, err, domain.ErrInvalidBloodType)

	_, err = svc.FindCompatibleDonors(ctx, service.FindRequest{BloodType: "A+", Location: domain.GeoPoint{Lat: 95, Lng: 0}})
	require.ErrorIs(t, err, domain.ErrInvalidCoordinates)

	_, err = svc.FindCompatibleDonors(ctx, service.FindRequest{BloodType: "A+", Location: searchAt, Page: -1})
	require.ErrorIs(t, err, domain.ErrInvalidPagination)

	_, err = svc.FindCompatibleDonors(ctx, service.FindRequest{BloodType: "A+", Location: searchAt, Limit: 51})
	require.ErrorIs(t, err, domain.ErrInvalidPagination)
}

func TestFindCompatibleDonorsPaginates(t *testing.T) {
	svc, repo := newService(t, &stubDispatcher{})
	for i := 0; i < 5; i++ {
		seedDonor(t, repo, string(rune('a'+i)), domain.ONegative, float64(i+1), nil)
	}

	resp, err := svc.FindCompatibleDonors(context.Background(), service.FindRequest{
		BloodType: "AB+",
		Location:  searchAt,
		Page:      2,
		Limit:     2,
	})
	require.NoError(t, err)
	require.Equal(t, 5, resp.Pagination.TotalDonors)
	require.Equal(t, 3, resp.Pagination.TotalPages)
	require.True(t, resp.Pagination.HasMore)
	require.Len(t, resp.Donors, 2)
	require.Equal(t, "c", resp.Donors[0].Name)
	require.Equal(t, "d", resp.Donors[1].Name)
}

func TestDonorEligibilityPersistsDerivedFlag(t *testing.T) {
	svc, repo := newService(t, &stubDispatcher{})
	last := now.Add(-10 * 24 * time.Hour)
	donor := seedDonor(t, repo, "recent", domain.APositive, 1, func(d *domain.Donor) {
		d.LastDonationAt = &last
		d.EligibleToDonate = true
	})

	result, err := svc.DonorEligibility(context.Background(), donor.ID)
	require.NoError(t, err)
	require.False(t, result.Status.Eligible)
	require.Equal(t, 80, result.Status.DaysUntilEligible)
	require.NotNil(t, result.Status.NextDonationAt)
	require.Equal(t, last.AddDate(0, 0, 90), *result.Status.NextDonationAt)
	require.NotNil(t, result.LastDonationAt)

	stored, err := repo.GetDonorByID(context.Background(), donor.ID)
	require.NoError(t, err)
	require.False(t, stored.EligibleToDonate)
}

func TestDonorEligibilityUnknownDonor(t *testing.T) {
	svc, _ := newService(t, &stubDispatcher{})
	_, err := svc.DonorEligibility(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrDonorNotFound)
}

func TestNotifyNearbyDonorsSelectsAndFansOut(t *testing.T) {
	dispatcher := &stubDispatcher{}
	svc, repo := newService(t, dispatcher)

	notified := seedDonor(t, repo, "ready", domain.ONegative, 2, nil)
	seedDonor(t, repo, "ineligible", domain.ONegative, 3, func(d *domain.Donor) {
		last := now.Add(-5 * 24 * time.Hour)
		d.LastDonationAt = &last
	})
	seedDonor(t, repo, "opted-out", domain.ONegative, 4, func(d *domain.Donor) {
		d.Preferences = domain.NotificationPreferences{RadiusKM: domain.DefaultAlertRadiusKM}
	})
	seedDonor(t, repo, "small-radius", domain.ONegative, 5, func(d *domain.Donor) {
		d.Preferences.RadiusKM = 1
	})
	seedDonor(t, repo, "incompatible", domain.BPositive, 2, nil)

	result, err := svc.NotifyNearbyDonors(context.Background(), service.NotifyRequest{
		BloodType: "A+",
		Location:  searchAt,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched)
	require.Equal(t, 1, result.Notified)
	require.Len(t, dispatcher.sent, 1)
	require.Equal(t, notified.ID, dispatcher.sent[0].ID)
}

func TestNotifyNearbyDonorsContinuesPastDispatchFailure(t *testing.T) {
	svc, repo := newService(t, nil)
	a := seedDonor(t, repo, "first", domain.ONegative, 2, nil)
	seedDonor(t, repo, "second", domain.ONegative, 3, nil)

	dispatcher := &stubDispatcher{failFor: map[uuid.UUID]bool{a.ID: true}}
	svc = service.New(repo, dispatcher, nil, stubClock{t: now}, nil, service.Config{})

	result, err := svc.NotifyNearbyDonors(context.Background(), service.NotifyRequest{
		BloodType: "O-",
		Location:  searchAt,
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Matched)
	require.Equal(t, 1, result.Notified)
}

func TestNotifyNearbyDonorsNarrowsThroughGeoIndex(t *testing.T) {
	dispatcher := &stubDispatcher{}
	repo := repository.NewMemoryRepository()
	indexed := seedDonor(t, repo, "indexed", domain.ONegative, 2, nil)
	seedDonor(t, repo, "unindexed", domain.ONegative, 3, nil)

	geo := &stubGeoIndex{ids: []uuid.UUID{indexed.ID}}
	svc := service.New(repo, dispatcher, geo, stubClock{t: now}, nil, service.Config{})

	result, err := svc.NotifyNearbyDonors(context.Background(), service.NotifyRequest{
		BloodType: "O-",
		Location:  searchAt,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched)
	require.Equal(t, 1, result.Notified)
	require.Len(t, dispatcher.sent, 1)
	require.Equal(t, indexed.ID, dispatcher.sent[0].ID)
}

func TestNotifyNearbyDonorsFallsBackWhenGeoIndexFails(t *testing.T) {
	dispatcher := &stubDispatcher{}
	repo := repository.NewMemoryRepository()
	seedDonor(t, repo, "first", domain.ONegative, 2, nil)
	seedDonor(t, repo, "second", domain.ONegative, 3, nil)

	geo := &stubGeoIndex{err: errors.New("index unavailable")}
	svc := service.New(repo, dispatcher, geo, stubClock{t: now}, nil, service.Config{})

	result, err := svc.NotifyNearbyDonors(context.Background(), service.NotifyRequest{
		BloodType: "O-",
		Location:  searchAt,
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Matched)
	require.Equal(t, 2, result.Notified)
}

func TestNotifyNearbyDonorsSkipsStaleGeoMembers(t *testing.T) {
	dispatcher := &stubDispatcher{}
	repo := repository.NewMemoryRepository()
	known := seedDonor(t, repo, "known", domain.ONegative, 2, nil)

	geo := &stubGeoIndex{ids: []uuid.UUID{known.ID, uuid.New()}}
	svc := service.New(repo, dispatcher, geo, stubClock{t: now}, nil, service.Config{})

	result, err := svc.NotifyNearbyDonors(context.Background(), service.NotifyRequest{
		BloodType: "O-",
		Location:  searchAt,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched)
	require.Equal(t, 1, result.Notified)
}

func TestNotifyNearbyDonorsDefaultsUnsetPreferenceRadius(t *testing.T) {
	dispatcher := &stubDispatcher{}
	svc, repo := newService(t, dispatcher)
	seedDonor(t, repo, "no-radius", domain.ONegative, 5, func(d *domain.Donor) {
		d.Preferences = domain.NotificationPreferences{SMSEnabled: true}
	})

	result, err := svc.NotifyNearbyDonors(context.Background(), service.NotifyRequest{
		BloodType: "O-",
		Location:  searchAt,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched)
	require.Equal(t, 1, result.Notified)
}

func TestRegisterDonorDefaultsAndValidates(t *testing.T) {
	svc, repo := newService(t, &stubDispatcher{})
	ctx := context.Background()

	donor, err := svc.RegisterDonor(ctx, service.RegisterRequest{
		Name:      "Asha",
		BloodType: "b negative",
		Location:  &domain.GeoPoint{Lat: 28.70, Lng: 77.10},
	})
	require.NoError(t, err)
	require.Equal(t, domain.BNegative, donor.BloodType)
	require.True(t, donor.EligibleToDonate)
	require.Equal(t, float64(domain.DefaultAlertRadiusKM), donor.Preferences.RadiusKM)

	stored, err := repo.GetDonorByID(ctx, donor.ID)
	require.NoError(t, err)
	require.Equal(t, donor.ID, stored.ID)

	_, err = svc.RegisterDonor(ctx, service.RegisterRequest{Name: "x", BloodType: "nope"})
	require.ErrorIs(t, err, domain.ErrInvalidBloodType)

	_, err = svc.RegisterDonor(ctx, service.RegisterRequest{
		Name:        "x",
		BloodType:   "A+",
		Preferences: &domain.NotificationPreferences{RadiusKM: 51},
	})
	require.ErrorIs(t, err, domain.ErrInvalidPreferences)
}

func TestUpdateDonorProfileRecomputesEligibility(t *testing.T) {
	svc, repo := newService(t, &stubDispatcher{})
	donor := seedDonor(t, repo, "donor", domain.APositive, 1, func(d *domain.Donor) {
		d.EligibleToDonate = true
	})

	last := now.Add(-30 * 24 * time.Hour)
	updated, err := svc.UpdateDonorProfile(context.Background(), donor.ID, service.UpdateProfileRequest{
		LastDonationAt: &last,
	})
	require.NoError(t, err)
	require.False(t, updated.EligibleToDonate)

	bloodType := "bad"
	_, err = svc.UpdateDonorProfile(context.Background(), donor.ID, service.UpdateProfileRequest{BloodType: &bloodType})
	require.ErrorIs(t, err, domain.ErrInvalidBloodType)
}
