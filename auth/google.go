package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleProvider signs users in with Google and re-issues Drive tokens from
// the stored refresh token.
type GoogleProvider struct {
	config          *oauth2.Config
	userinfoOptions []option.ClientOption
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string, scopes []string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// WithEndpoint overrides the OAuth endpoint and userinfo base URL.
func (p *GoogleProvider) WithEndpoint(endpoint oauth2.Endpoint, userinfoURL string) *GoogleProvider {
	p.config.Endpoint = endpoint
	p.userinfoOptions = append(p.userinfoOptions, option.WithEndpoint(userinfoURL))
	return p
}

// AuthCodeURL requests offline access so a refresh token is issued.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for tokens and looks up the user.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, Identity, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, Identity{}, errors.Wrap(err, "exchange authorization code")
	}

	opts := append([]option.ClientOption{
		option.WithTokenSource(p.config.TokenSource(ctx, tok)),
	}, p.userinfoOptions...)

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, Identity{}, errors.Wrap(err, "create userinfo client")
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, Identity{}, errors.Wrap(err, "fetch userinfo")
	}
	if info.Id == "" {
		return nil, Identity{}, errors.New("userinfo returned no user id")
	}

	return tok, Identity{
		UserID:      info.Id,
		Email:       info.Email,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
	}, nil
}

// Reauthenticate uses the session's refresh token to obtain a new access token.
func (p *GoogleProvider) Reauthenticate(ctx context.Context, s Session) (*oauth2.Token, error) {
	if s.RefreshToken == "" {
		return nil, errors.New("no refresh token on session")
	}

	expired := &oauth2.Token{
		RefreshToken: s.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}
	tok, err := p.config.TokenSource(ctx, expired).Token()
	if err != nil {
		return nil, errors.Wrap(err, "refresh access token")
	}
	return tok, nil
}
