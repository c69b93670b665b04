package garage

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is mandated by OAuth1 device firmware
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"
	"time"
)

// oauthNonceBytes is the amount of randomness in each nonce.
const oauthNonceBytes = 48

// Signer appends OAuth1 signatures to device request URLs.
//
// The parameter handling follows the device firmware byte for byte: existing
// query parameters are carried verbatim (not decoded), OAuth values are
// percent-encoded before sorting, and the version is "1.0a".
type Signer struct {
	creds OAuthCredentials
	nonce func() (string, error)
	now   func() time.Time
}

// NewSigner creates a Signer using crypto/rand nonces and the wall clock.
func NewSigner(creds OAuthCredentials) *Signer {
	return &Signer{
		creds: creds,
		nonce: randomNonce,
		now:   time.Now,
	}
}

// randomNonce returns 48 random bytes, base64-encoded.
func randomNonce() (string, error) {
	buf := make([]byte, oauthNonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating oauth nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Sign returns rawURL with the OAuth parameters and signature in its query string.
//
// Parameters:
//   - method: Upper-case HTTP method
//   - rawURL: Absolute URL, optionally with a query string
//
// Returns:
//   - string: Signed URL
//   - error: If the nonce cannot be generated or the method is unknown
func (s *Signer) Sign(method, rawURL string) (string, error) {
	nonce, err := s.nonce()
	if err != nil {
		return "", err
	}

	base, query, _ := strings.Cut(rawURL, "?")

	params := make(map[string]string)
	if query != "" {
		for _, pair := range strings.Split(query, "&") {
			k, v, _ := strings.Cut(pair, "=")
			params[k] = v
		}
	}

	params["oauth_version"] = "1.0a"
	params["oauth_token"] = percentEncode(s.creds.Token)
	params["oauth_consumer_key"] = percentEncode(s.creds.ConsumerKey)
	params["oauth_signature_method"] = percentEncode(s.creds.SignatureMethod)
	params["oauth_nonce"] = percentEncode(nonce)
	params["oauth_timestamp"] = percentEncode(strconv.FormatInt(s.now().Unix(), 10))

	paramString := joinSorted(params)

	baseString := percentEncode(method) + "&" + percentEncode(base) + "&" + percentEncode(paramString)
	key := percentEncode(s.creds.ConsumerSecret) + "&" + percentEncode(s.creds.TokenSecret)

	signature, err := s.signature(baseString, key)
	if err != nil {
		return "", err
	}

	return base + "?" + paramString + "&oauth_signature=" + percentEncode(signature), nil
}

// signature computes the base64 signature for the configured method.
func (s *Signer) signature(baseString, key string) (string, error) {
	var newHash func() hash.Hash
	switch s.creds.SignatureMethod {
	case SignatureHMACSHA1:
		newHash = sha1.New
	case SignatureHMACSHA256:
		newHash = sha256.New
	case SignaturePlaintext:
		return base64.StdEncoding.EncodeToString([]byte(baseString)), nil
	default:
		return "", fmt.Errorf("%w: unsupported oauth signature method %q", ErrConfiguration, s.creds.SignatureMethod)
	}

	mac := hmac.New(newHash, []byte(key))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// joinSorted renders k=v pairs joined by & in lexicographic key order.
func joinSorted(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	return sb.String()
}

// percentEncode escapes everything except RFC 3986 unreserved characters,
// so ! ' ( ) * are encoded too. Hex digits are upper case.
func percentEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0F])
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}
