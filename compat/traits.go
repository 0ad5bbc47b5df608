package compat

// Trait tags.
const (
	TraitCleanTidy       = "Clean & Tidy"
	TraitSocialButterfly = "Social Butterfly"
	TraitIntrovert       = "Introvert"
	TraitNightOwl        = "Night Owl"
	TraitEarlyBird       = "Early Bird"
	TraitHost            = "Host"
)

// DeriveTraits turns one profile's survey answers into display tags.
// Answers at the midpoint, or missing, produce no tag.
func DeriveTraits(p *UserProfile) []string {
	traits := make([]string, 0, 4)
	if p == nil {
		return traits
	}
	l := p.Lifestyle

	if ordinalOrMidpoint(l.Cleanliness) > ScaleMidpoint {
		traits = append(traits, TraitCleanTidy)
	}

	switch social := ordinalOrMidpoint(l.SocialLevel); {
	case social > ScaleMidpoint:
		traits = append(traits, TraitSocialButterfly)
	case social < ScaleMidpoint:
		traits = append(traits, TraitIntrovert)
	}

	switch sleep := ordinalOrMidpoint(l.SleepSchedule); {
	case sleep > ScaleMidpoint:
		traits = append(traits, TraitNightOwl)
	case sleep < ScaleMidpoint:
		traits = append(traits, TraitEarlyBird)
	}

	if ordinalOrMidpoint(l.GuestFrequency) > ScaleMidpoint {
		traits = append(traits, TraitHost)
	}
	return traits
}
