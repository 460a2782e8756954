package gateway

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried on gateway bearer tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenSource mints short-lived HS256 bearer tokens for gateway calls.
type TokenSource struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSource constructs a token source. ttl defaults to five minutes.
func NewTokenSource(secret []byte, ttl time.Duration) (*TokenSource, error) {
	if len(secret) == 0 {
		return nil, errors.New("gateway: empty token secret")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenSource{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Token signs a bearer token for the given user.
func (s *TokenSource) Token(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("gateway: empty user id")
	}
	now := s.now().UTC()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates a bearer token and returns its claims. Used by tests
// and by deployments that terminate gateway auth locally.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("gateway: empty token")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("gateway: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("gateway: invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("gateway: missing user_id")
	}
	return claims, nil
}
