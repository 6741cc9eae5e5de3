package github

import (
	"strconv"

	bridge "github.com/goliatone/go-auth-bridge"
)

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Company   string `json:"company"`
	Blog      string `json:"blog"`
	Location  string `json:"location"`
	Bio       string `json:"bio"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// mapProfile orders verified addresses first with the primary one leading.
// Unverified addresses are dropped so they never match a local account.
func mapProfile(user *githubUser, emails []githubEmail) *bridge.Profile {
	if user == nil {
		return nil
	}

	profile := &bridge.Profile{
		ID:          strconv.FormatInt(user.ID, 10),
		Username:    user.Login,
		DisplayName: user.Name,
		Raw: map[string]any{
			"id":         user.ID,
			"login":      user.Login,
			"name":       user.Name,
			"email":      user.Email,
			"avatar_url": user.AvatarURL,
			"html_url":   user.HTMLURL,
			"company":    user.Company,
			"blog":       user.Blog,
			"location":   user.Location,
			"bio":        user.Bio,
		},
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			profile.Emails = append(profile.Emails, bridge.ProfileEmail{Value: e.Email, Type: "primary", Verified: true})
		}
	}
	for _, e := range emails {
		if !e.Primary && e.Verified {
			profile.Emails = append(profile.Emails, bridge.ProfileEmail{Value: e.Email, Verified: true})
		}
	}

	switch {
	case len(profile.Emails) > 0:
		profile.Email = profile.Emails[0].Value
	case user.Email != "":
		profile.Email = user.Email
	}

	return profile
}
