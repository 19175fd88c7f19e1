package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/lifelink/internal/auth"
	"github.com/example/lifelink/internal/donor/domain"
	"github.com/example/lifelink/internal/donor/match"
	"github.com/example/lifelink/internal/donor/service"
)

// HTTP exposes the donor matching endpoints.
type HTTP struct {
	svc       *service.Service
	jwtSecret string
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Service, jwtSecret string) *HTTP {
	return &HTTP{svc: svc, jwtSecret: jwtSecret}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Post("/donor/register", h.register)
	r.Post("/donor/find-compatible", h.findCompatible)
	r.Post("/donor/notify-for-thalassemia", h.notifyForThalassemia)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.jwtSecret, "donor"))
		r.Get("/donor/eligibility", h.eligibility)
		r.Put("/donor/profile", h.updateProfile)
	})
	return r
}

type locationPayload struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type findCompatibleRequest struct {
	BloodType string           `json:"bloodType"`
	Location  *locationPayload `json:"location"`
	RadiusKM  float64          `json:"radiusKm"`
	Page      *int             `json:"page"`
	Limit     *int             `json:"limit"`
}

type paginationPayload struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalDonors int  `json:"totalDonors"`
	HasMore     bool `json:"hasMore"`
}

type matchedDonorPayload struct {
	Name      string  `json:"name"`
	BloodType string  `json:"bloodType"`
	Distance  float64 `json:"distance"`
	District  string  `json:"district"`
	State     string  `json:"state"`
}

func (h *HTTP) findCompatible(w http.ResponseWriter, r *http.Request) {
	var payload findCompatibleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.BloodType == "" {
		writeError(w, http.StatusBadRequest, "bloodType is required")
		return
	}
	location, ok := decodeLocation(payload.Location)
	if !ok {
		writeError(w, http.StatusBadRequest, "location with lat and lng is required")
		return
	}
	// An absent page or limit gets the default; an explicit out-of-range
	// value, zero included, is a client error.
	page := 0
	if payload.Page != nil {
		if *payload.Page < 1 {
			writeError(w, http.StatusBadRequest, "page must be >= 1")
			return
		}
		page = *payload.Page
	}
	limit := 0
	if payload.Limit != nil {
		if *payload.Limit < 1 || *payload.Limit > match.MaxPageLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", match.MaxPageLimit))
			return
		}
		limit = *payload.Limit
	}

	resp, err := h.svc.FindCompatibleDonors(r.Context(), service.FindRequest{
		BloodType: payload.BloodType,
		Location:  location,
		RadiusKM:  payload.RadiusKM,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	donors := make([]matchedDonorPayload, 0, len(resp.Donors))
	for _, d := range resp.Donors {
		donors = append(donors, matchedDonorPayload{
			Name:      d.Name,
			BloodType: string(d.BloodType),
			Distance:  d.DistanceKM,
			District:  d.District,
			State:     d.State,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"pagination": paginationPayload{
			CurrentPage: resp.Pagination.CurrentPage,
			TotalPages:  resp.Pagination.TotalPages,
			TotalDonors: resp.Pagination.TotalDonors,
			HasMore:     resp.Pagination.HasMore,
		},
		"donors": donors,
	})
}

type eligibilityPayload struct {
	IsEligible        bool    `json:"isEligible"`
	Message           string  `json:"message"`
	NextDonationDate  *string `json:"nextDonationDate"`
	DaysUntilEligible int     `json:"daysUntilEligible"`
	LastDonationDate  *string `json:"lastDonationDate"`
}

func (h *HTTP) eligibility(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	donorID, err := claims.DonorUUID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}

	result, err := h.svc.DonorEligibility(r.Context(), donorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"eligibility": eligibilityPayload{
			IsEligible:        result.Status.Eligible,
			Message:           result.Status.Message,
			NextDonationDate:  formatDate(result.Status.NextDonationAt),
			DaysUntilEligible: result.Status.DaysUntilEligible,
			LastDonationDate:  formatDate(result.LastDonationAt),
		},
	})
}

type notifyRequest struct {
	BloodType string           `json:"bloodType"`
	Location  *locationPayload `json:"location"`
}

func (h *HTTP) notifyForThalassemia(w http.ResponseWriter, r *http.Request) {
	var payload notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.BloodType == "" {
		writeError(w, http.StatusBadRequest, "bloodType is required")
		return
	}
	location, ok := decodeLocation(payload.Location)
	if !ok {
		writeError(w, http.StatusBadRequest, "location with lat and lng is required")
		return
	}

	result, err := h.svc.NotifyNearbyDonors(r.Context(), service.NotifyRequest{
		BloodType: payload.BloodType,
		Location:  location,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"donorsMatched":  result.Matched,
		"donorsNotified": result.Notified,
	})
}

type preferencesPayload struct {
	SMSEnabled   bool    `json:"smsEnabled"`
	EmailEnabled bool    `json:"emailEnabled"`
	Radius       float64 `json:"radius"`
}

type registerRequest struct {
	Name             string              `json:"name"`
	BloodType        string              `json:"bloodType"`
	Location         *locationPayload    `json:"location"`
	District         string              `json:"district"`
	State            string              `json:"state"`
	Phone            string              `json:"phone"`
	Email            string              `json:"email"`
	LastDonationDate *string             `json:"lastDonationDate"`
	Preferences      *preferencesPayload `json:"notificationPreferences"`
}

func (h *HTTP) register(w http.ResponseWriter, r *http.Request) {
	var payload registerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" || payload.BloodType == "" {
		writeError(w, http.StatusBadRequest, "name and bloodType are required")
		return
	}

	req := service.RegisterRequest{
		Name:      payload.Name,
		BloodType: payload.BloodType,
		District:  payload.District,
		State:     payload.State,
		Phone:     payload.Phone,
		Email:     payload.Email,
	}
	if loc, ok := decodeLocation(payload.Location); ok {
		req.Location = &loc
	}
	if payload.LastDonationDate != nil {
		last, err := parseDate(*payload.LastDonationDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lastDonationDate")
			return
		}
		req.LastDonationAt = &last
	}
	if payload.Preferences != nil {
		req.Preferences = &domain.NotificationPreferences{
			SMSEnabled:   payload.Preferences.SMSEnabled,
			EmailEnabled: payload.Preferences.EmailEnabled,
			RadiusKM:     payload.Preferences.Radius,
		}
	}

	donor, err := h.svc.RegisterDonor(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"donorId": donor.ID.String(),
	})
}

type updateProfileRequest struct {
	BloodType        *string             `json:"bloodType"`
	Location         *locationPayload    `json:"location"`
	District         *string             `json:"district"`
	State            *string             `json:"state"`
	LastDonationDate *string             `json:"lastDonationDate"`
	Preferences      *preferencesPayload `json:"notificationPreferences"`
}

func (h *HTTP) updateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	donorID, err := claims.DonorUUID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}

	var payload updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := service.UpdateProfileRequest{
		BloodType: payload.BloodType,
		District:  payload.District,
		State:     payload.State,
	}
	if loc, ok := decodeLocation(payload.Location); ok {
		req.Location = &loc
	}
	if payload.LastDonationDate != nil {
		last, err := parseDate(*payload.LastDonationDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lastDonationDate")
			return
		}
		req.LastDonationAt = &last
	}
	if payload.Preferences != nil {
		req.Preferences = &domain.NotificationPreferences{
			SMSEnabled:   payload.Preferences.SMSEnabled,
			EmailEnabled: payload.Preferences.EmailEnabled,
			RadiusKM:     payload.Preferences.Radius,
		}
	}

	if _, err := h.svc.UpdateDonorProfile(r.Context(), donorID, req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func decodeLocation(payload *locationPayload) (domain.GeoPoint, bool) {
	if payload == nil || payload.Lat == nil || payload.Lng == nil {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: *payload.Lat, Lng: *payload.Lng}, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidBloodType),
		errors.Is(err, domain.ErrInvalidCoordinates),
		errors.Is(err, domain.ErrInvalidPagination),
		errors.Is(err, domain.ErrInvalidPreferences):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDonorNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
