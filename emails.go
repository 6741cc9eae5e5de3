package bridge

import "strings"

// ExtractEmails returns the candidate emails of a profile: the emails list
// when present, else the singleton email. When the strategy sets an email domain
// only addresses ending in "@"+domain are kept. The comparison is case
// sensitive.
func ExtractEmails(spec StrategySpec, profile *Profile) []string {
	if profile == nil {
		return nil
	}

	var candidates []string
	if len(profile.Emails) > 0 {
		for _, email := range profile.Emails {
			if email.Value != "" {
				candidates = append(candidates, email.Value)
			}
		}
	} else if profile.Email != "" {
		candidates = append(candidates, profile.Email)
	}

	if spec.EmailDomain == "" {
		return candidates
	}

	suffix := "@" + spec.EmailDomain
	out := candidates[:0:0]
	for _, email := range candidates {
		if strings.HasSuffix(email, suffix) {
			out = append(out, email)
		}
	}
	return out
}
