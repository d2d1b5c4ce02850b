package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/createarena/arena/logger"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

const (
	certsKey        = "certs"
	defaultCertsTTL = time.Hour
)

var maxAgePattern = regexp.MustCompile(`max-age=(\d+)`)

// CertKeys verifies RS256 tokens against x509 certificates published as a JSON
// object of kid to PEM, the format used by Firebase secure tokens.
type CertKeys struct {
	url    string
	client *http.Client
	cache  *cache.Cache
	mu     sync.Mutex
}

func NewCertKeys(url string, client *http.Client) *CertKeys {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CertKeys{
		url:    url,
		client: client,
		cache:  cache.New(defaultCertsTTL, 10*time.Minute),
	}
}

func (k *CertKeys) Methods() []string { return []string{jwt.SigningMethodRS256.Alg()} }

func (k *CertKeys) Key(ctx context.Context, token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token has no kid header")
	}
	keys, err := k.load(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

func (k *CertKeys) load(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	if v, ok := k.cache.Get(certsKey); ok {
		return v.(map[string]*rsa.PublicKey), nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if v, ok := k.cache.Get(certsKey); ok {
		return v.(map[string]*rsa.PublicKey), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch certs: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var pems map[string]string
	if err := json.Unmarshal(body, &pems); err != nil {
		return nil, fmt.Errorf("decode certs: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			logger.Warningf("skipping identity cert %s: %v", kid, err)
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("no usable identity certs")
	}

	k.cache.Set(certsKey, keys, maxAge(resp.Header.Get("Cache-Control")))
	return keys, nil
}

func maxAge(cacheControl string) time.Duration {
	m := maxAgePattern.FindStringSubmatch(cacheControl)
	if m == nil {
		return defaultCertsTTL
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs <= 0 {
		return defaultCertsTTL
	}
	return time.Duration(secs) * time.Second
}
