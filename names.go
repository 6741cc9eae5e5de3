package bridge

import (
	"strings"
)

// HumanName is a display name split into parts.
type HumanName struct {
	Salutation string
	FirstName  string
	Initials   string
	LastName   string
	Suffix     string
}

var (
	salutations = map[string]bool{
		"mr": true, "mrs": true, "ms": true, "miss": true, "mx": true,
		"dr": true, "prof": true, "sir": true, "dame": true, "rev": true,
	}
	suffixes = map[string]bool{
		"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
		"phd": true, "md": true, "esq": true,
	}
	surnameParticles = map[string]bool{
		"van": true, "von": true, "de": true, "da": true, "del": true,
		"della": true, "di": true, "du": true, "la": true, "le": true,
		"der": true, "den": true, "ter": true, "bin": true, "ibn": true,
		"st": true, "dos": true, "das": true,
	}
)

func nameKey(token string) string {
	return strings.ToLower(strings.Trim(token, "."))
}

// ParseHumanName splits a free form display name. Supported shapes are
// "First Middle Last", "Last, First Middle" and either of them with a
// leading salutation or a trailing suffix.
func ParseHumanName(s string) HumanName {
	var out HumanName

	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return out
	}

	if before, after, found := strings.Cut(s, ","); found {
		after = strings.TrimSpace(after)
		if suffixes[nameKey(after)] {
			out.Suffix = after
			s = strings.TrimSpace(before)
		} else if before = strings.TrimSpace(before); before != "" && after != "" {
			given := strings.Fields(after)
			if len(given) > 1 && salutations[nameKey(given[0])] {
				out.Salutation = given[0]
				given = given[1:]
			}
			out.FirstName = given[0]
			out.Initials = strings.Join(given[1:], " ")
			out.LastName = before
			return out
		}
	}

	tokens := strings.Fields(s)
	if len(tokens) > 1 && salutations[nameKey(tokens[0])] {
		out.Salutation = tokens[0]
		tokens = tokens[1:]
	}
	if len(tokens) > 1 && suffixes[nameKey(tokens[len(tokens)-1])] {
		out.Suffix = tokens[len(tokens)-1]
		tokens = tokens[:len(tokens)-1]
	}

	switch len(tokens) {
	case 0:
		return out
	case 1:
		out.FirstName = tokens[0]
		return out
	}

	last := len(tokens) - 1
	for last > 1 && surnameParticles[nameKey(tokens[last-1])] {
		last--
	}

	out.FirstName = tokens[0]
	out.LastName = strings.Join(tokens[last:], " ")
	if middle := tokens[1:last]; len(middle) > 0 {
		out.Initials = strings.Join(middle, " ")
	}
	return out
}
