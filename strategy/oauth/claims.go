package oauth

import (
	"fmt"
	"strconv"
	"strings"

	bridge "github.com/goliatone/go-auth-bridge"
)

// ProfileFromClaims maps OpenID Connect style claims to a profile. It also
// understands the id and login keys used by plain OAuth APIs.
//
// The email claim is used only with email_verified set to true. Entries of an
// emails list are used only when marked verified. Unverified addresses stay
// in Raw.
func ProfileFromClaims(claims map[string]any) *bridge.Profile {
	profile := &bridge.Profile{
		ID:          firstString(claims, "sub", "id", "user_id"),
		Username:    firstString(claims, "preferred_username", "login", "username", "nickname"),
		DisplayName: firstString(claims, "name", "display_name"),
		Raw:         claims,
	}

	given := firstString(claims, "given_name", "first_name")
	middle := firstString(claims, "middle_name")
	family := firstString(claims, "family_name", "last_name")
	if given != "" || middle != "" || family != "" {
		profile.Name = &bridge.ProfileName{
			GivenName:  given,
			MiddleName: middle,
			FamilyName: family,
		}
	}

	if email := firstString(claims, "email"); email != "" && isTrue(claims["email_verified"]) {
		profile.Email = email
		profile.Emails = append(profile.Emails, bridge.ProfileEmail{Value: email, Verified: true})
	}
	if list, ok := claims["emails"].([]any); ok {
		for _, item := range list {
			v, ok := item.(map[string]any)
			if !ok || !isTrue(v["verified"]) {
				continue
			}
			if value, _ := v["value"].(string); value != "" {
				kind, _ := v["type"].(string)
				profile.Emails = append(profile.Emails, bridge.ProfileEmail{Value: value, Type: kind, Verified: true})
			}
		}
	}
	if profile.Email == "" && len(profile.Emails) > 0 {
		profile.Email = profile.Emails[0].Value
	}

	return profile
}

// isTrue accepts the boolean and the "true" string some providers send.
func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}

func firstString(claims map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int, int64, uint64:
			return fmt.Sprintf("%d", v)
		}
	}
	return ""
}
