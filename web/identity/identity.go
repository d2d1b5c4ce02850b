// Package identity verifies the bearer tokens issued by the external identity
// provider and yields the verified subject email.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/createarena/arena/util/common"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a bearer token into the subject's email.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Claims are the fields read from a provider token.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// KeySource resolves the verification key for a token header.
type KeySource interface {
	Key(ctx context.Context, token *jwt.Token) (any, error)
	Methods() []string
}

// JWTVerifier checks signature, expiry, issuer and audience.
type JWTVerifier struct {
	keys     KeySource
	issuer   string
	audience string
	leeway   time.Duration
}

// NewJWTVerifier builds a verifier; empty issuer or audience skips that check.
func NewJWTVerifier(keys KeySource, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{keys: keys, issuer: issuer, audience: audience, leeway: 30 * time.Second}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", common.Unauthenticated("missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.keys.Methods()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.keys.Key(ctx, t)
	}, opts...)
	if err != nil {
		return "", &common.Error{Kind: common.KindUnauthenticated, Code: common.CodeUnauthenticated, Msg: "invalid token", Err: err}
	}
	if !parsed.Valid {
		return "", common.Unauthenticated("invalid token")
	}
	if claims.Email == "" {
		return "", common.Unauthenticated("token has no email claim")
	}
	return strings.ToLower(claims.Email), nil
}

// HMACKeys verifies HS256 tokens with a shared secret.
type HMACKeys struct {
	Secret []byte
}

func (k HMACKeys) Key(_ context.Context, _ *jwt.Token) (any, error) {
	if len(k.Secret) == 0 {
		return nil, errors.New("no hmac secret configured")
	}
	return k.Secret, nil
}

func (k HMACKeys) Methods() []string { return []string{jwt.SigningMethodHS256.Alg()} }

// SignHMAC issues an HS256 token for email. Used by the CLI to mint development tokens.
func SignHMAC(secret []byte, email, issuer, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// New picks the key source from configuration; the certs URL wins over the HMAC secret.
func New(certsURL, hmacSecret, issuer, audience string) (Verifier, error) {
	switch {
	case certsURL != "":
		return NewJWTVerifier(NewCertKeys(certsURL, nil), issuer, audience), nil
	case hmacSecret != "":
		return NewJWTVerifier(HMACKeys{Secret: []byte(hmacSecret)}, issuer, audience), nil
	}
	return nil, errors.New("no identity key source configured")
}
