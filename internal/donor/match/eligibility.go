package match

import (
	"fmt"
	"math"
	"time"

	"github.com/example/lifelink/internal/donor/domain"
)

// DefaultWaitingPeriodDays is the mandatory gap between whole-blood donations.
const DefaultWaitingPeriodDays = 90

// Eligibility computes a donor's waiting-window state from the last donation
// date. A nil last donation means immediately eligible. Day counting is the
// ceiling of the elapsed wall-clock difference in whole days; callers must use
// the same rounding to reproduce results.
func Eligibility(lastDonationAt *time.Time, waitingDays int, now time.Time) domain.EligibilityStatus {
	if waitingDays <= 0 {
		waitingDays = DefaultWaitingPeriodDays
	}
	if lastDonationAt == nil {
		return domain.EligibilityStatus{
			Eligible: true,
			Message:  "You are eligible to donate blood.",
		}
	}

	daysSince := int(math.Ceil(now.Sub(*lastDonationAt).Hours() / 24))
	if daysSince < 0 {
		daysSince = 0
	}
	if daysSince >= waitingDays {
		return domain.EligibilityStatus{
			Eligible: true,
			Message:  "You are eligible to donate blood.",
		}
	}

	remaining := waitingDays - daysSince
	next := lastDonationAt.AddDate(0, 0, waitingDays)
	return domain.EligibilityStatus{
		Eligible:          false,
		Message:           fmt.Sprintf("You can donate again in %d day(s).", remaining),
		NextDonationAt:    &next,
		DaysUntilEligible: remaining,
	}
}
