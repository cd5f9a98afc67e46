package jwt

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenUse distinguishes access tokens from refresh tokens inside the claim set.
type TokenUse string

const (
	// UseAccess marks a short-lived access token.
	UseAccess TokenUse = "access"
	// UseRefresh marks a long-lived refresh token.
	UseRefresh TokenUse = "refresh"
)

var (
	// ErrMalformed is returned when a token cannot be parsed or lacks required claims.
	ErrMalformed = errors.New("token malformed")
	// ErrInvalidSignature is returned when the signature does not verify under the signing key.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired is returned when a token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalidClaims is returned for any other registered-claim violation (issuer, nbf, iat).
	ErrInvalidClaims = errors.New("token claims invalid")
	// ErrWrongTokenUse is returned when a refresh token is presented as an access token or vice versa.
	ErrWrongTokenUse = errors.New("token used for the wrong purpose")
)

// Config holds codec settings. Key is required.
type Config struct {
	Key        *SigningKey
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
	Now        func() time.Time
}

// Manager signs and verifies HS256 tokens with a single derived key.
//
// Manager is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the claim set of an access token. The principal id is the
// registered subject.
type AccessClaims struct {
	Name          string   `json:"name,omitempty"`
	Role          string   `json:"role,omitempty"`
	StoreName     string   `json:"store_name,omitempty"`
	StoreCategory string   `json:"store_category,omitempty"`
	AccessTokenID string   `json:"ati"`
	Use           TokenUse `json:"use"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject claim.
func (c *AccessClaims) PrincipalID() string {
	return c.Subject
}

// RefreshClaims is the claim set of a refresh token.
type RefreshClaims struct {
	AccessTokenID string   `json:"ati"`
	Use           TokenUse `json:"use"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject claim.
func (c *RefreshClaims) PrincipalID() string {
	return c.Subject
}

// NewManager validates cfg and returns a codec. A missing key or a
// non-positive TTL fails construction.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Key == nil || len(cfg.Key.bytes()) == 0 {
		return nil, ErrSecretMissing
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token validity.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// RefreshTTL returns the configured refresh-token validity.
func (j *Manager) RefreshTTL() time.Duration {
	return j.config.RefreshTTL
}

// CreateAccess signs an access token valid for the configured access TTL.
func (j *Manager) CreateAccess(claims AccessClaims) (string, error) {
	return j.IssueAccess(claims, j.config.AccessTTL)
}

// IssueAccess signs an access token valid for ttl. Expiry, issuer and token
// use are stamped here; every other field is taken from claims. A preset
// IssuedAt pins the issue time, otherwise the configured clock is read.
func (j *Manager) IssueAccess(claims AccessClaims, ttl time.Duration) (string, error) {
	if claims.Subject == "" || claims.AccessTokenID == "" {
		return "", ErrMalformed
	}
	claims.Use = UseAccess
	claims.RegisteredClaims = j.registered(claims.Subject, claims.IssuedAt, ttl)
	return j.sign(&claims)
}

// CreateRefresh signs a refresh token valid for the configured refresh TTL.
func (j *Manager) CreateRefresh(claims RefreshClaims) (string, error) {
	return j.IssueRefresh(claims, j.config.RefreshTTL)
}

// IssueRefresh signs a refresh token valid for ttl.
func (j *Manager) IssueRefresh(claims RefreshClaims, ttl time.Duration) (string, error) {
	if claims.Subject == "" || claims.AccessTokenID == "" {
		return "", ErrMalformed
	}
	claims.Use = UseRefresh
	claims.RegisteredClaims = j.registered(claims.Subject, claims.IssuedAt, ttl)
	return j.sign(&claims)
}

// ParseAccess verifies the signature, then expiry, then that the token is an
// access token.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Use != UseAccess {
		return nil, ErrWrongTokenUse
	}
	if claims.Subject == "" || claims.AccessTokenID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// ParseRefresh verifies the signature, then expiry, then that the token is a
// refresh token.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Use != UseRefresh {
		return nil, ErrWrongTokenUse
	}
	if claims.Subject == "" || claims.AccessTokenID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (j *Manager) registered(subject string, issuedAt *jwt.NumericDate, ttl time.Duration) jwt.RegisteredClaims {
	now := j.config.Now()
	if issuedAt != nil {
		now = issuedAt.Time
	}
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(Deadline(now, ttl)),
		Issuer:    j.config.Issuer,
	}
	return rc
}

// Deadline returns the expiry carried on the wire by a token issued at
// issuedAt with the given ttl. Wire dates have second precision.
func Deadline(issuedAt time.Time, ttl time.Duration) time.Time {
	return issuedAt.Add(ttl).Truncate(jwt.TimePrecision)
}

// PinIssuedAt returns a NumericDate for presetting IssuedAt on claims.
func PinIssuedAt(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t)
}

func (j *Manager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.Key.bytes())
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.config.Key.bytes(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && j.forged(tokenStr) {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return classify(err)
	}
	if !token.Valid {
		return ErrInvalidClaims
	}
	return nil
}

// forged reports whether tokenStr carries a well-formed HS256 signature that
// does not belong to its header and payload. The library decodes header and
// payload before it verifies, so an edited payload otherwise surfaces as a
// decode failure. A signature in non-canonical base64 counts as forged.
func (j *Manager) forged(tokenStr string) bool {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(sig) != sha256.Size {
		return false
	}
	if base64.RawURLEncoding.EncodeToString(sig) != parts[2] {
		return true
	}
	return jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, j.config.Key.bytes()) != nil
}

// classify maps library errors onto the codec taxonomy. Claims are validated
// only after the signature verifies, so an expired forgery reports as a
// signature failure.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}
