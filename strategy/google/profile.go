package google

import bridge "github.com/goliatone/go-auth-bridge"

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
	HostedDomain  string `json:"hd"`
}

// mapProfile exposes the address only when Google verified it. An
// unverified address stays in Raw and never reaches email matching.
func mapProfile(info *googleUserInfo) *bridge.Profile {
	if info == nil {
		return nil
	}

	profile := &bridge.Profile{
		ID:          info.Sub,
		DisplayName: info.Name,
		FirstName:   info.GivenName,
		LastName:    info.FamilyName,
		Raw: map[string]any{
			"sub":            info.Sub,
			"email":          info.Email,
			"email_verified": info.EmailVerified,
			"name":           info.Name,
			"given_name":     info.GivenName,
			"family_name":    info.FamilyName,
			"picture":        info.Picture,
			"locale":         info.Locale,
			"hd":             info.HostedDomain,
		},
	}
	if info.GivenName != "" || info.FamilyName != "" {
		profile.Name = &bridge.ProfileName{GivenName: info.GivenName, FamilyName: info.FamilyName}
	}
	if info.Email != "" && info.EmailVerified {
		profile.Email = info.Email
		profile.Emails = []bridge.ProfileEmail{{Value: info.Email, Verified: true}}
	}

	return profile
}
