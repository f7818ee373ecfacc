package auth

import (
	"errors"
	"time"

	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrTokenNotYetValid  = errors.New("token is not yet valid")
	ErrInvalidClaims     = errors.New("invalid token claims")
	ErrMissingCompanyID  = errors.New("missing company_id in claims")
	ErrMissingSubject    = errors.New("missing sub in claims")
	ErrMissingSigningKey = errors.New("jwt secret is not configured")
)

// Claims are the bearer claims of a settlement API caller.
// The actor is the registered subject.
type Claims struct {
	jwt.RegisteredClaims
	CompanyID string `json:"company_id"`
}

// CompanyUUID parses the company claim
func (c *Claims) CompanyUUID() (uuid.UUID, error) {
	return uuid.Parse(c.CompanyID)
}

// ActorUUID parses the subject claim
func (c *Claims) ActorUUID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenService signs and validates HS256 access tokens
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a token service from configuration
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// Issue signs a token for an actor acting on behalf of a company
func (s *TokenService) Issue(companyID, actorID uuid.UUID, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSigningKey
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   actorID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		CompanyID: companyID.String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses a token and checks signature, lifetime, issuer and the
// company and subject claims
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSigningKey
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if _, err := claims.CompanyUUID(); err != nil {
		return nil, ErrMissingCompanyID
	}
	if _, err := claims.ActorUUID(); err != nil {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
