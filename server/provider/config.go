package provider

import (
	"os"
	"strings"
)

// Environment variables with provider selection and credentials.
const (
	EnvProvider         = "VIDEO_SERVICE_PROVIDER"
	EnvOpenTokAPIKey    = "OT_API_KEY"
	EnvOpenTokAPISecret = "OT_API_SECRET"
	EnvVonageAppID      = "VONAGE_APP_ID"
	EnvVonagePrivateKey = "VONAGE_PRIVATE_KEY"
)

// Credentials of the active video platform: either OpenTokCredentials or VonageCredentials.
type Credentials interface {
	// Kind of the platform the credentials are for.
	Kind() Kind

	// Not implementable outside of this package.
	credentials()
}

// OpenTokCredentials is a project API key and secret.
type OpenTokCredentials struct {
	APIKey    string
	APISecret string
}

// Kind returns KindOpenTok.
func (OpenTokCredentials) Kind() Kind { return KindOpenTok }

func (OpenTokCredentials) credentials() {}

// VonageCredentials is an application id and its PEM-encoded RSA private key.
type VonageCredentials struct {
	ApplicationID string
	PrivateKey    string
}

// Kind returns KindVonage.
func (VonageCredentials) Kind() Kind { return KindVonage }

func (VonageCredentials) credentials() {}

// ConfigError is returned when the provider is unknown or its credentials are incomplete.
type ConfigError struct {
	// Provider as requested.
	Provider string
	// Names of missing environment variables, if any.
	Missing []string
	// Other failure description.
	Reason string
}

func (e *ConfigError) Error() string {
	msg := "provider config"
	if e.Provider != "" {
		msg += " '" + e.Provider + "'"
	}
	if len(e.Missing) > 0 {
		msg += ": missing " + strings.Join(e.Missing, ", ")
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// LoadCredentials reads the provider selection and its credentials using getenv, usually os.Getenv.
// OpenTok is used when the selection is empty. The Vonage private key may be given as PEM text
// or as a path to a PEM file.
func LoadCredentials(getenv func(string) string) (Credentials, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(getenv(EnvProvider))))
	if kind == "" {
		kind = KindOpenTok
	}

	var missing []string
	value := func(name string) string {
		val := strings.TrimSpace(getenv(name))
		if val == "" {
			missing = append(missing, name)
		}
		return val
	}

	switch kind {
	case KindOpenTok:
		creds := OpenTokCredentials{
			APIKey:    value(EnvOpenTokAPIKey),
			APISecret: value(EnvOpenTokAPISecret),
		}
		if len(missing) > 0 {
			return nil, &ConfigError{Provider: string(kind), Missing: missing}
		}
		return creds, nil

	case KindVonage:
		creds := VonageCredentials{
			ApplicationID: value(EnvVonageAppID),
			PrivateKey:    value(EnvVonagePrivateKey),
		}
		if len(missing) > 0 {
			return nil, &ConfigError{Provider: string(kind), Missing: missing}
		}
		if !strings.Contains(creds.PrivateKey, "-----BEGIN") {
			pem, err := os.ReadFile(creds.PrivateKey)
			if err != nil {
				return nil, &ConfigError{Provider: string(kind), Reason: "failed to read private key: " + err.Error()}
			}
			creds.PrivateKey = string(pem)
		}
		return creds, nil
	}

	return nil, &ConfigError{Provider: string(kind), Reason: "unknown provider"}
}
