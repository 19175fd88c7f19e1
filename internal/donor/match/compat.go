package match

import "github.com/example/lifelink/internal/donor/domain"

// acceptableDonors maps a recipient blood type to the set of donor types that
// can be safely transfused into it, per standard ABO/Rh rules.
var acceptableDonors = map[domain.BloodType][]domain.BloodType{
	domain.APositive:  {domain.APositive, domain.ANegative, domain.OPositive, domain.ONegative},
	domain.ANegative:  {domain.ANegative, domain.ONegative},
	domain.BPositive:  {domain.BPositive, domain.BNegative, domain.OPositive, domain.ONegative},
	domain.BNegative:  {domain.BNegative, domain.ONegative},
	domain.ABPositive: {domain.APositive, domain.ANegative, domain.BPositive, domain.BNegative, domain.ABPositive, domain.ABNegative, domain.OPositive, domain.ONegative},
	domain.ABNegative: {domain.ANegative, domain.BNegative, domain.ABNegative, domain.ONegative},
	domain.OPositive:  {domain.OPositive, domain.ONegative},
	domain.ONegative:  {domain.ONegative},
}

// Compatible reports whether donor blood can be transfused into recipient.
// Unknown values on either side fail closed.
func Compatible(donor, recipient domain.BloodType) bool {
	accepted, ok := acceptableDonors[recipient]
	if !ok || !donor.Valid() {
		return false
	}
	for _, candidate := range accepted {
		if candidate == donor {
			return true
		}
	}
	return false
}
