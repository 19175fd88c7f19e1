package match

import (
	"fmt"
	"sort"

	"github.com/example/lifelink/internal/donor/domain"
)

// DefaultRadiusKM bounds a match request when the caller does not set one.
const DefaultRadiusKM = 10

// MaxPageLimit caps page sizes at the API boundary.
const MaxPageLimit = 50

// Match annotates a donor with the distance from the request point,
// rounded to one decimal.
type Match struct {
	Donor      domain.Donor
	DistanceKM float64
}

// FindCompatible filters the donor snapshot down to blood-compatible donors
// with a usable location within radiusKM of at, sorted ascending by distance
// (ties broken by name for determinism). The pass is purely computational and
// never mutates donor state.
func FindCompatible(donors []domain.Donor, recipient domain.BloodType, at domain.GeoPoint, radiusKM float64) []Match {
	if radiusKM <= 0 {
		radiusKM = DefaultRadiusKM
	}

	matches := make([]Match, 0, len(donors))
	for _, donor := range donors {
		if !Compatible(donor.BloodType, recipient) {
			candidatesTotal.WithLabelValues("incompatible").Inc()
			continue
		}
		if !donor.HasLocation() {
			candidatesTotal.WithLabelValues("no_location").Inc()
			continue
		}
		dist := DistanceKM(at, *donor.Location)
		if dist > radiusKM {
			candidatesTotal.WithLabelValues("out_of_radius").Inc()
			continue
		}
		candidatesTotal.WithLabelValues("matched").Inc()
		matches = append(matches, Match{Donor: donor, DistanceKM: roundKM(dist)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceKM != matches[j].DistanceKM {
			return matches[i].DistanceKM < matches[j].DistanceKM
		}
		return matches[i].Donor.Name < matches[j].Donor.Name
	})
	return matches
}

// Page is one slice of a sorted match list plus pagination metadata.
type Page struct {
	Matches     []Match
	CurrentPage int
	TotalPages  int
	TotalDonors int
	HasMore     bool
}

// Paginate slices [(page-1)*limit, page*limit) out of the sorted matches.
// Out-of-range page/limit values are a client error, never clamped.
func Paginate(matches []Match, page, limit int) (Page, error) {
	if page < 1 {
		return Page{}, fmt.Errorf("%w: page must be >= 1", domain.ErrInvalidPagination)
	}
	if limit < 1 || limit > MaxPageLimit {
		return Page{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidPagination, MaxPageLimit)
	}

	total := len(matches)
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return Page{
		Matches:     matches[start:end],
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalDonors: total,
		HasMore:     end < total,
	}, nil
}
