// AngelaMos | 2026
// provider.go

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	GitHub = "github"
	Google = "google"
)

type Profile struct {
	ID    string
	Email string
	Name  string
}

// ProviderSpec describes where a provider lives. Credentials come from
// configuration.
type ProviderSpec struct {
	Name       string
	Endpoint   oauth2.Endpoint
	Scopes     []string
	ProfileURL string
	EmailsURL  string
	decode     func(ctx context.Context, client *http.Client, spec *ProviderSpec) (*Profile, error)
}

func GitHubSpec() ProviderSpec {
	return ProviderSpec{
		Name:       GitHub,
		Endpoint:   endpoints.GitHub,
		Scopes:     []string{"user:email"},
		ProfileURL: "https://api.github.com/user",
		EmailsURL:  "https://api.github.com/user/emails",
		decode:     githubProfile,
	}
}

func GoogleSpec() ProviderSpec {
	return ProviderSpec{
		Name:       Google,
		Endpoint:   endpoints.Google,
		Scopes:     []string{"openid", "email", "profile"},
		ProfileURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		decode:     googleProfile,
	}
}

// WithEndpoints returns a copy of spec pointed at other URLs, keeping its
// profile decoding.
func (spec ProviderSpec) WithEndpoints(authURL, tokenURL, profileURL, emailsURL string) ProviderSpec {
	spec.Endpoint = oauth2.Endpoint{
		AuthURL:   authURL,
		TokenURL:  tokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	spec.ProfileURL = profileURL
	spec.EmailsURL = emailsURL
	return spec
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}

func githubProfile(ctx context.Context, client *http.Client, spec *ProviderSpec) (*Profile, error) {
	var body struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, spec.ProfileURL, &body); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if body.ID == 0 {
		return nil, fmt.Errorf("fetch profile: missing id")
	}

	email := body.Email
	if email == "" && spec.EmailsURL != "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, spec.EmailsURL, &emails); err != nil {
			return nil, fmt.Errorf("fetch emails: %w", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}
	if email == "" {
		return nil, fmt.Errorf("fetch profile: no verified primary email")
	}

	name := body.Name
	if name == "" {
		name = body.Login
	}

	return &Profile{
		ID:    strconv.FormatInt(body.ID, 10),
		Email: email,
		Name:  name,
	}, nil
}

func googleProfile(ctx context.Context, client *http.Client, spec *ProviderSpec) (*Profile, error) {
	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, client, spec.ProfileURL, &body); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if body.ID == "" || body.Email == "" {
		return nil, fmt.Errorf("fetch profile: missing id or email")
	}

	return &Profile{ID: body.ID, Email: body.Email, Name: body.Name}, nil
}
