package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenInvalid = errors.New("signed token invalid")
	ErrTokenExpired = errors.New("signed token expired")
)

// SignedLink is a token bound to one resource and one storage key.
type SignedLink struct {
	Token      string
	ResourceID string
	Key        string
	ExpiresAt  time.Time
}

// LinkSigner issues HMAC-SHA256 tokens of the form
// resourceID.expiryUnix.base64(key).signature.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign binds resourceID and key into a token valid for the signer TTL.
func (s *LinkSigner) Sign(resourceID, key string) (SignedLink, error) {
	if resourceID == "" || key == "" {
		return SignedLink{}, fmt.Errorf("resource id and key are required")
	}
	if strings.Contains(resourceID, ".") {
		return SignedLink{}, fmt.Errorf("resource id %q must not contain '.'", resourceID)
	}
	if len(s.secret) == 0 {
		return SignedLink{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	token := strings.Join([]string{resourceID, expiry, encodedKey, s.mac(resourceID, expiry, encodedKey)}, ".")
	return SignedLink{Token: token, ResourceID: resourceID, Key: key, ExpiresAt: expiresAt}, nil
}

// Verify checks the signature and expiry of token.
func (s *LinkSigner) Verify(token string) (SignedLink, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return SignedLink{}, ErrTokenInvalid
	}
	resourceID, expiry, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.mac(resourceID, expiry, encodedKey)), []byte(signature)) {
		return SignedLink{}, ErrTokenInvalid
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return SignedLink{}, ErrTokenInvalid
	}
	key, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return SignedLink{}, ErrTokenInvalid
	}
	link := SignedLink{Token: token, ResourceID: resourceID, Key: string(key), ExpiresAt: time.Unix(unix, 0)}
	if s.now().After(link.ExpiresAt) {
		return link, ErrTokenExpired
	}
	return link, nil
}

func (s *LinkSigner) mac(resourceID, expiry, encodedKey string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(resourceID + "|" + expiry + "|" + encodedKey))
	return hex.EncodeToString(h.Sum(nil))
}
