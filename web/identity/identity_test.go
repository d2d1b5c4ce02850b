package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/createarena/arena/util/common"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func signHS(t *testing.T, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func TestJWTVerifierHMAC(t *testing.T) {
	v := NewJWTVerifier(HMACKeys{Secret: secret}, "https://issuer", "arena")
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    "https://issuer",
		Audience:  jwt.ClaimStrings{"arena"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	tests := []struct {
		name    string
		token   func() string
		email   string
		wantErr bool
	}{
		{"valid token", func() string { return signHS(t, Claims{Email: "Alice@Example.com", RegisteredClaims: valid}) }, "alice@example.com", false},
		{"empty token", func() string { return "" }, "", true},
		{"garbage", func() string { return "not-a-jwt" }, "", true},
		{"expired", func() string {
			c := valid
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
			return signHS(t, Claims{Email: "a@x.io", RegisteredClaims: c})
		}, "", true},
		{"no expiry", func() string {
			c := valid
			c.ExpiresAt = nil
			return signHS(t, Claims{Email: "a@x.io", RegisteredClaims: c})
		}, "", true},
		{"wrong audience", func() string {
			c := valid
			c.Audience = jwt.ClaimStrings{"other"}
			return signHS(t, Claims{Email: "a@x.io", RegisteredClaims: c})
		}, "", true},
		{"wrong issuer", func() string {
			c := valid
			c.Issuer = "https://evil"
			return signHS(t, Claims{Email: "a@x.io", RegisteredClaims: c})
		}, "", true},
		{"missing email", func() string { return signHS(t, Claims{RegisteredClaims: valid}) }, "", true},
		{"wrong secret", func() string {
			tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Email: "a@x.io", RegisteredClaims: valid}).SignedString([]byte("other"))
			return tok
		}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, err := v.Verify(context.Background(), tt.token())
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, common.IsKind(err, common.KindUnauthenticated))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.email, email)
		})
	}
}

func TestSignHMACRoundTrip(t *testing.T) {
	tok, err := SignHMAC(secret, "bob@x.io", "iss", "aud", time.Minute)
	require.NoError(t, err)
	email, err := NewJWTVerifier(HMACKeys{Secret: secret}, "iss", "aud").Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "bob@x.io", email)
}

func selfSigned(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestCertKeysVerifyRS256AndCache(t *testing.T) {
	key, certPEM := selfSigned(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(map[string]string{"k1": certPEM})
	}))
	defer srv.Close()

	v := NewJWTVerifier(NewCertKeys(srv.URL, srv.Client()), "", "")
	sign := func(kid string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
			Email:            "carol@x.io",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})
		tok.Header["kid"] = kid
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	email, err := v.Verify(context.Background(), sign("k1"))
	require.NoError(t, err)
	assert.Equal(t, "carol@x.io", email)

	_, err = v.Verify(context.Background(), sign("k1"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	_, err = v.Verify(context.Background(), sign("unknown"))
	assert.Error(t, err)

	// an HS256 token must not be accepted by an RS256 verifier
	_, err = v.Verify(context.Background(), signHS(t, Claims{Email: "carol@x.io", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}))
	assert.Error(t, err)
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 600*time.Second, maxAge("public, max-age=600, must-revalidate"))
	assert.Equal(t, defaultCertsTTL, maxAge(""))
	assert.Equal(t, defaultCertsTTL, maxAge("no-cache"))
}

func TestNewPicksKeySource(t *testing.T) {
	_, err := New("", "", "", "")
	assert.Error(t, err)

	v, err := New("", "s", "", "")
	require.NoError(t, err)
	assert.IsType(t, &JWTVerifier{}, v)
}
