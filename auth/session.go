package auth

import (
	"time"

	"github.com/nijaru/videoverse/models"
)

// Session is one signed-in user's identity and cached Drive credentials.
// It is a value: refreshing produces a new Session that replaces the old one.
type Session struct {
	ID           string
	UserID       string
	Email        string
	DisplayName  string
	PhotoURL     string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CreatedAt    time.Time
}

// Identity is the provider's description of the signed-in user.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	PhotoURL    string
}

func (s Session) SignedIn() bool {
	return s.UserID != ""
}

// usable reports whether the cached token has more than margin left.
func (s Session) usable(now time.Time, margin time.Duration) bool {
	return s.AccessToken != "" && s.Expiry.Sub(now) > margin
}

func (s Session) User() models.UserResponse {
	return models.UserResponse{
		ID:          s.UserID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		PhotoURL:    s.PhotoURL,
	}
}
