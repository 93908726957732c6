package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const issuer = "videoverse"

// CookieCodec signs and verifies the session cookie value. The cookie
// carries only the session id and subject; tokens never leave the server.
type CookieCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCookieCodec(secret string, ttl time.Duration) *CookieCodec {
	return &CookieCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (c *CookieCodec) Encode(s Session) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        s.ID,
		Subject:   s.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode returns the session id and user id from a signed cookie value.
func (c *CookieCodec) Decode(value string) (sessionID, userID string, err error) {
	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(value, &claims,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", "", errors.Wrap(err, "invalid session cookie")
	}
	if claims.ID == "" || claims.Subject == "" {
		return "", "", errors.New("session cookie missing claims")
	}
	return claims.ID, claims.Subject, nil
}
