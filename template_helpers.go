package bridge

import (
	"maps"

	"github.com/goliatone/go-router"
)

// TemplateSessionKey is the template variable holding the current session.
var TemplateSessionKey = "current_session"

// TemplateHelpers returns functions and data for the view engine globals.
//
// In templates:
//
//	{% for link in login_links(locale, page.id) %}
//	  <a href="{{ link.Href }}">{{ link.Label }}</a>
//	{% endfor %}
//	{% if is_authenticated(current_session) %}
func TemplateHelpers(registry *Registry, locales Locales) map[string]any {
	multiLocale := len(locales) > 1

	return map[string]any{
		"login_links": func(locale, documentID string) []LoginLink {
			return registry.LoginLinks(LoginLinkContext{
				Locale:      locale,
				DocumentID:  documentID,
				MultiLocale: multiLocale,
			})
		},
		"strategy_urls":    registry.URLs,
		"is_authenticated": isAuthenticated,
	}
}

// TemplateHelpersWithRouter adds the session established during the request,
// if any, to the helpers.
func TemplateHelpersWithRouter(ctx router.Context, registry *Registry, locales Locales) map[string]any {
	helpers := TemplateHelpers(registry, locales)
	if sess, ok := RouterSession(ctx); ok {
		helpers[TemplateSessionKey] = sess
	}
	return helpers
}

// MergeTemplateData merges the helpers into data. Keys in data win.
func MergeTemplateData(ctx router.Context, registry *Registry, locales Locales, data router.ViewContext) router.ViewContext {
	out := router.ViewContext{}
	maps.Copy(out, TemplateHelpersWithRouter(ctx, registry, locales))
	maps.Copy(out, data)
	return out
}

func isAuthenticated(sess any) bool {
	switch s := sess.(type) {
	case *Session:
		return s != nil && s.UserID != ""
	case Session:
		return s.UserID != ""
	case map[string]any:
		id, _ := s["user_id"].(string)
		return id != ""
	default:
		return false
	}
}
