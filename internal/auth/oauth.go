package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/sakif/pixelboard/internal/model"
)

// Discord OAuth2 endpoints.
// API docs: https://discord.com/developers/docs/topics/oauth2
var DiscordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/api/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const (
	discordUserURL   = "https://discord.com/api/users/@me"
	discordAvatarURL = "https://cdn.discordapp.com/avatars/%s/%s.png"
)

// DiscordUser is the portion of GET /users/@me we care about.
type DiscordUser struct {
	ID         string  `json:"id"`          // snowflake, stable for the account's lifetime
	Username   string  `json:"username"`    // unique handle
	GlobalName *string `json:"global_name"` // display name, if the user set one
	Avatar     *string `json:"avatar"`      // avatar hash, null for the default avatar
}

// Identity converts the profile into the identity carried by session tokens.
// The display name prefers global_name over the handle.
func (u *DiscordUser) Identity() *model.Identity {
	name := u.Username
	if u.GlobalName != nil && *u.GlobalName != "" {
		name = *u.GlobalName
	}
	id := &model.Identity{SubjectID: u.ID, DisplayName: name}
	if u.Avatar != nil && *u.Avatar != "" {
		url := fmt.Sprintf(discordAvatarURL, u.ID, *u.Avatar)
		id.AvatarURL = &url
	}
	return id
}

// DiscordProvider wraps golang.org/x/oauth2 for the Discord Authorization
// Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. Redirect the browser to Discord with our client id and scopes.
//  2. The user approves on Discord.
//  3. Discord redirects back to the callback URL with a short-lived code.
//  4. We exchange the code for an access token (server-to-server).
//  5. We call /users/@me with that token.
type DiscordProvider struct {
	config  *oauth2.Config
	userURL string
}

// NewDiscordProvider creates a DiscordProvider. The only scope requested is
// "identify": we need the id, name and avatar and nothing else.
func NewDiscordProvider(clientID, clientSecret, callbackURL string) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"identify"},
			Endpoint:     DiscordEndpoint,
		},
		userURL: discordUserURL,
	}
}

// WithEndpoints points the provider at another token and profile server.
// Used by tests.
func (p *DiscordProvider) WithEndpoints(endpoint oauth2.Endpoint, userURL string) *DiscordProvider {
	cfg := *p.config
	cfg.Endpoint = endpoint
	return &DiscordProvider{config: &cfg, userURL: userURL}
}

// Configured reports whether client credentials were supplied.
func (p *DiscordProvider) Configured() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}

// AuthURL returns the URL to redirect the user to. state is echoed back on
// the callback and must match the state cookie set before redirecting.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the Discord profile.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*DiscordUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building Discord /users/@me request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Discord /users/@me: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Discord /users/@me returned status %d", resp.StatusCode)
	}

	var user DiscordUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("auth: decoding Discord /users/@me response: %w", err)
	}
	if user.ID == "" || user.Username == "" {
		return nil, fmt.Errorf("auth: Discord returned an incomplete user")
	}
	return &user, nil
}
