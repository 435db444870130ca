// Package token is the token service (spec.md §2, §4.2): issues and
// validates access tokens, refresh tokens, and single-use tokens.
// Grounded on the teacher's applications/auth.Manager for the JWT
// signing/parsing shape and on original_source's token_service.py for
// the refresh-token split/validate/rotate algorithm and the one-time
// token's type-claim discipline.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the access-token payload, embedding the registered claims
// the way the teacher's applications/auth.Claims does.
type Claims struct {
	UserType string `json:"user_type"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

const accessTokenScope = "access_token"

// OneTimeClaims backs email-verification and password-reset tokens.
type OneTimeClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

const (
	OneTimeTypeEmailVerification = "email_verification"
	OneTimeTypePasswordReset     = "password_reset"
)

// Config controls signing parameters; all fields are sourced from
// internal/config at process start and treated as immutable
// thereafter (spec.md §9 "Globals").
type Config struct {
	Secret               []byte
	Issuer               string
	Audience             string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	EmailVerifyTTL       time.Duration
	PasswordResetTTL     time.Duration
}

// Signer issues and parses JWTs. Kept separate from the
// database-backed RefreshService so access/one-time token issuance
// never needs a unit of work.
type Signer struct {
	cfg Config
}

func NewSigner(cfg Config) *Signer { return &Signer{cfg: cfg} }

// IssueAccessToken signs a short-lived access token for userID.
func (s *Signer) IssueAccessToken(userID, userType string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.cfg.AccessTokenTTL)
	claims := Claims{
		UserType: userType,
		Scope:    accessTokenScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	return signed, exp, err
}

// ParseAccessToken validates and decodes an access token.
func (s *Signer) ParseAccessToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, s.keyFunc,
		jwt.WithIssuer(s.cfg.Issuer), jwt.WithAudience(s.cfg.Audience))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Scope != accessTokenScope {
		return nil, fmt.Errorf("token: not a valid access token")
	}
	return claims, nil
}

// IssueOneTimeToken signs a single-use token of the given type.
func (s *Signer) IssueOneTimeToken(subjectEmail, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OneTimeClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectEmail,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.cfg.Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
}

// ParseOneTimeToken validates a one-time token and checks its type
// claim matches expectedType, returning the subject email on success —
// mirroring _verify_one_time_token's expected_type guard.
func (s *Signer) ParseOneTimeToken(raw, expectedType string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &OneTimeClaims{}, s.keyFunc, jwt.WithIssuer(s.cfg.Issuer))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*OneTimeClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("token: invalid one-time token")
	}
	if claims.Type != expectedType {
		return "", fmt.Errorf("token: unexpected one-time token type %q", claims.Type)
	}
	return claims.Subject, nil
}

func (s *Signer) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("token: unexpected signing method %v", t.Header["alg"])
	}
	return s.cfg.Secret, nil
}

// GenerateRefreshSecret returns a fresh high-entropy payload for the
// wire-format secret half of a refresh token, and its bcrypt hash for
// storage.
func GenerateRefreshSecret() (secret, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return secret, string(hashed), nil
}

// WireFormat joins a jti and secret into the "<jti>.<secret>" refresh
// token string returned to clients.
func WireFormat(jti, secret string) string { return jti + "." + secret }

// SplitWireFormat splits a refresh token wire string into its jti and
// secret halves, rejecting malformed input.
func SplitWireFormat(raw string) (jti, secret string, err error) {
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("token: malformed refresh token")
	}
	if _, err := uuid.Parse(parts[0]); err != nil {
		return "", "", fmt.Errorf("token: malformed refresh token jti")
	}
	return parts[0], parts[1], nil
}

// CompareSecret performs a constant-time bcrypt comparison of a
// presented secret against its stored hash.
func CompareSecret(hash, presented string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented))
	return err == nil
}

// constantTimeEqual is a constant-time byte comparison for non-bcrypt
// values. No code in this package calls it at present; the
// refresh-secret path above uses bcrypt's own constant-time compare.
func constantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
