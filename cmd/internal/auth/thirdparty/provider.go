package thirdparty

import (
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// UserInfoMap locates fields in a userinfo JSON document by dot path,
// e.g. "data.0.attributes.address". Numeric segments index arrays.
type UserInfoMap struct {
	UserID        string
	Email         string
	EmailVerified string
}

// Provider describes one OAuth 2.0 identity provider.
type Provider struct {
	ID string

	// OAuth carries the client credentials, endpoint and scopes. RedirectURL is set per call.
	OAuth oauth2.Config

	UserInfoURL string
	Map         UserInfoMap

	// EmailsURL, when set, is a list of {email, primary, verified} objects
	// consulted for the primary email after the userinfo call.
	EmailsURL string
}

// GitHub returns the github provider.
func GitHub(clientID, clientSecret string) Provider {
	return Provider{
		ID: "github",
		OAuth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoints.GitHub,
			Scopes:       []string{"user:email"},
		},
		UserInfoURL: "https://api.github.com/user",
		Map:         UserInfoMap{UserID: "id"},
		EmailsURL:   "https://api.github.com/user/emails",
	}
}

// PlanningCenter returns the planningcenter provider. Its primary flag is
// the only verification signal the API exposes.
func PlanningCenter(clientID, clientSecret string) Provider {
	return Provider{
		ID: "planningcenter",
		OAuth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://api.planningcenteronline.com/oauth/authorize",
				TokenURL: "https://api.planningcenteronline.com/oauth/token",
			},
			Scopes: []string{"people"},
		},
		UserInfoURL: "https://api.planningcenteronline.com/people/v2/me/emails?where[primary]=true",
		Map: UserInfoMap{
			UserID:        "data.0.relationships.person.data.id",
			Email:         "data.0.attributes.address",
			EmailVerified: "data.0.attributes.primary",
		},
	}
}

// ProvidersFromEnv returns the providers whose client ID is configured.
//
//   - GITHUB_OAUTH_CLIENT_ID / GITHUB_OAUTH_CLIENT_SECRET
//   - PLANNING_CENTER_OAUTH_CLIENT_ID / PLANNING_CENTER_OAUTH_CLIENT_SECRET
func ProvidersFromEnv() []Provider {
	var out []Provider
	if id := strings.TrimSpace(os.Getenv("GITHUB_OAUTH_CLIENT_ID")); id != "" {
		out = append(out, GitHub(id, os.Getenv("GITHUB_OAUTH_CLIENT_SECRET")))
	}
	if id := strings.TrimSpace(os.Getenv("PLANNING_CENTER_OAUTH_CLIENT_ID")); id != "" {
		out = append(out, PlanningCenter(id, os.Getenv("PLANNING_CENTER_OAUTH_CLIENT_SECRET")))
	}
	return out
}
