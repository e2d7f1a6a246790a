package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tendant/video-intake/pkg/intake"
)

// JWT validates HS256 tokens locally. The user id is the "sub" claim.
type JWT struct {
	secret   []byte
	issuer   string
	audience string
}

// JWTOption configures a JWT authenticator
type JWTOption func(*JWT)

// WithIssuer requires the "iss" claim to equal issuer
func WithIssuer(issuer string) JWTOption {
	return func(j *JWT) {
		j.issuer = issuer
	}
}

// WithAudience requires the "aud" claim to contain audience
func WithAudience(audience string) JWTOption {
	return func(j *JWT) {
		j.audience = audience
	}
}

// NewJWT creates an authenticator for tokens signed with secret.
func NewJWT(secret string, opts ...JWTOption) (*JWT, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: jwt secret is required", intake.ErrConfiguration)
	}
	j := &JWT{secret: []byte(secret)}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func (j *JWT) Authenticate(_ context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", invalid("empty token")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}
	if j.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(j.audience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, parserOpts...)
	if err != nil {
		return "", invalid("%v", err)
	}
	if !token.Valid {
		return "", invalid("token is not valid")
	}
	if claims.Subject == "" {
		return "", invalid("token has no subject")
	}

	return claims.Subject, nil
}

// Issue signs a token for userID valid for ttl. It is meant for local
// development and tests; production tokens come from the identity provider.
func (j *JWT) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    j.issuer,
	}
	if j.audience != "" {
		claims.Audience = jwt.ClaimStrings{j.audience}
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}
