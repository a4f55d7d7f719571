package store

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookbeacon/internal/util"
)

// ErrInvalidToken is the single verification failure surfaced to callers.
// Expired, tampered, malformed, and revoked tokens are indistinguishable.
var ErrInvalidToken = errors.New("invalid token")

// JWTSessionStore issues and verifies HMAC-SHA256 session tokens. A
// TokenRevoker closes the logout replay gap: revoked tokens fail
// verification for the rest of their lifetime.
type JWTSessionStore struct {
	secret  []byte
	ttl     time.Duration
	revoker TokenRevoker
}

// NewJWTSessionStore builds a session store around a server-held secret.
func NewJWTSessionStore(secret string, ttl time.Duration, revoker TokenRevoker) *JWTSessionStore {
	return &JWTSessionStore{
		secret:  []byte(secret),
		ttl:     ttl,
		revoker: revoker,
	}
}

// Issue signs the caller-supplied claims as-is, overlaying expiry, issue
// time, and a random token id. The claim shape is not validated.
func (s *JWTSessionStore) Issue(claims map[string]any) (string, error) {
	now := time.Now().UTC()
	mapClaims := jwt.MapClaims{}
	for k, v := range claims {
		mapClaims[k] = v
	}
	mapClaims["exp"] = jwt.NewNumericDate(now.Add(s.ttl))
	mapClaims["iat"] = jwt.NewNumericDate(now)
	mapClaims["jti"] = util.NewID()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	return token.SignedString(s.secret)
}

// Verify validates signature, expiry, and revocation state, returning the
// embedded claims.
func (s *JWTSessionStore) Verify(token string) (map[string]any, error) {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if s.revoker != nil {
		jti, _ := claims["jti"].(string)
		revoked, err := s.revoker.IsRevoked(jti)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// Revoke denylists the token id until natural expiry. Tokens that no longer
// verify need no denylist entry and are ignored.
func (s *JWTSessionStore) Revoke(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return nil
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	return s.revoker.Revoke(jti, time.Until(exp.Time))
}

func (s *JWTSessionStore) parseAndVerify(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("token not valid")
		}
		return nil, err
	}
	return claims, nil
}
