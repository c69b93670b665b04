package garage

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/config"
)

// OAuth signature methods accepted by device firmware.
const (
	SignatureHMACSHA1   = "HMAC-SHA1"
	SignatureHMACSHA256 = "HMAC-SHA256"
	SignaturePlaintext  = "PLAINTEXT"
)

// stalenessMultiplier is how many poll intervals may pass before a state read is stale.
const stalenessMultiplier = 3

// OAuthCredentials are the OAuth1 signing credentials. Immutable.
type OAuthCredentials struct {
	ConsumerKey     string
	ConsumerSecret  string
	Token           string
	TokenSecret     string
	SignatureMethod string
}

// Setup is the validated device configuration the adapter is built from.
type Setup struct {
	Name      string
	LightName string
	Profile   *Profile
	Gate      GateOptions

	PollInterval time.Duration

	// DoorOperation is the open-loop completion delay, set only when the
	// profile has no door state endpoint.
	DoorOperation time.Duration
}

// StalenessWindow is the age beyond which an observation is untrustworthy.
func (s *Setup) StalenessWindow() time.Duration {
	return stalenessMultiplier * s.PollInterval
}

// NewSetup validates the garage configuration and builds the immutable profile.
//
// Every problem is collected so a single startup log shows them all.
//
// Parameters:
//   - cfg: The garage section of the configuration file
//
// Returns:
//   - *Setup: Validated setup ready for NewController
//   - error: *ConfigurationError listing every problem
func NewSetup(cfg config.GarageConfig) (*Setup, error) {
	b := &profileBuilder{}

	if cfg.Name == "" {
		b.addf("garage.name is required")
	}
	if cfg.HTTP.Host == "" {
		b.addf("garage.http.host is required")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		b.addf("garage.http.port must be between 1 and 65535")
	}
	if cfg.HTTP.StatusPollMilliseconds <= 0 {
		b.addf("garage.http.status_poll_ms must be positive")
	}
	if cfg.HTTP.RequestTimeoutMilliseconds <= 0 {
		b.addf("garage.http.request_timeout_ms must be positive")
	}
	if cfg.HTTP.HeaderName != "" && cfg.HTTP.HeaderValue == "" {
		b.addf("garage.http.header_value is required when garage.http.header_name is set")
	}

	ssl := cfg.HTTP.SSL
	signatureMethod := cfg.OAuth.SignatureMethod

	var profile *Profile
	kind, ok := parseProfileKind(cfg.API.Type)
	switch {
	case !ok:
		b.addf("garage.api.type must be vendor, json or generic")
	case kind == ProfileVendor:
		// The vendor firmware speaks plain HTTP and signs with SHA-256 only.
		ssl = false
		signatureMethod = SignatureHMACSHA256
		profile = vendorProfile(cfg.LightName != "")
	default:
		profile = b.configuredProfile(kind, cfg)
	}

	var oauth *OAuthCredentials
	if cfg.OAuth.Enabled {
		oauth = b.oauthCredentials(cfg.OAuth, signatureMethod)
	}

	setup := &Setup{
		Name:         cfg.Name,
		LightName:    cfg.LightName,
		Profile:      profile,
		PollInterval: cfg.PollInterval(),
		Gate: GateOptions{
			SSL:         ssl,
			Host:        cfg.HTTP.Host,
			Port:        cfg.HTTP.Port,
			Timeout:     cfg.RequestTimeout(),
			HeaderName:  cfg.HTTP.HeaderName,
			HeaderValue: cfg.HTTP.HeaderValue,
			OAuth:       oauth,
		},
	}

	if profile != nil && !profile.HasDoorState() {
		if cfg.API.DoorOperationSeconds <= 0 {
			b.addf("garage.api.door_operation_seconds is required when garage.api.door.state.url is not set")
		}
		setup.DoorOperation = time.Duration(cfg.API.DoorOperationSeconds) * time.Second
	}

	if len(b.problems) > 0 {
		return nil, &ConfigurationError{Problems: b.problems}
	}
	return setup, nil
}

// oauthCredentials validates the OAuth section.
func (b *profileBuilder) oauthCredentials(cfg config.OAuthConfig, method string) *OAuthCredentials {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = SignatureHMACSHA1
	}
	switch method {
	case SignatureHMACSHA1, SignatureHMACSHA256, SignaturePlaintext:
	default:
		b.addf("garage.oauth.signature_method must be HMAC-SHA1, HMAC-SHA256 or PLAINTEXT")
	}
	if cfg.ConsumerKey == "" {
		b.addf("garage.oauth.consumer_key is required when oauth is enabled")
	}
	if cfg.ConsumerSecret == "" {
		b.addf("garage.oauth.consumer_secret is required when oauth is enabled")
	}
	if cfg.Token != "" && cfg.TokenSecret == "" {
		b.addf("garage.oauth.token_secret is required when garage.oauth.token is set")
	}
	return &OAuthCredentials{
		ConsumerKey:     cfg.ConsumerKey,
		ConsumerSecret:  cfg.ConsumerSecret,
		Token:           cfg.Token,
		TokenSecret:     cfg.TokenSecret,
		SignatureMethod: method,
	}
}
