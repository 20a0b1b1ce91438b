// Configuration helpers.

package main

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	jcr "github.com/tinode/jsonco"

	"github.com/vidroom/vidroom/server/coordinator"
	"github.com/vidroom/vidroom/server/provider"
)

const (
	// Address to listen on unless configured otherwise.
	defaultListen = ":3345"
	// Environment variable with the port (or address) to listen on.
	envListenPort = "VCR_PORT"
)

// Contents of the configuration file.
type configType struct {
	// HTTP(S) address:port to listen on for client requests.
	Listen string `json:"listen"`
	// Path to the web app files.
	StaticData string `json:"static_data"`
	// Allowed CORS origins, all if empty.
	CORSOrigins []string `json:"cors_origins"`
	// Path for Prometheus metrics, "-" to disable.
	MetricsPath string `json:"metrics_path"`
	// Timeout of a single call to the video platform in seconds, 0 disables the timeout.
	ProviderTimeout *int `json:"provider_timeout"`
	// Settings of the video platform. Credentials are taken from the environment.
	ProviderConfig provider.Options `json:"provider_config"`
	// Configs for the room store.
	StoreConfig json.RawMessage `json:"store_config"`
	// TLS config.
	TLS json.RawMessage `json:"tls"`
}

// configError is a config parsing error with a position in the file.
type configError struct {
	line, char int
	msg        string
}

func (e *configError) Error() string {
	if e.line > 0 {
		return "config at " + strconv.Itoa(e.line) + ":" + strconv.Itoa(e.char) + ": " + e.msg
	}
	return "config: " + e.msg
}

// parseConfig reads JSON with comments and reports the line and character of syntax and type errors.
func parseConfig(r io.Reader) (*configType, error) {
	var config configType
	jr := jcr.New(r)
	if err := json.NewDecoder(jr).Decode(&config); err != nil {
		switch jerr := err.(type) {
		case *json.UnmarshalTypeError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			return nil, &configError{line: lnum, char: cnum, msg: "invalid value of " + jerr.Field + ": " + jerr.Error()}
		case *json.SyntaxError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			return nil, &configError{line: lnum, char: cnum, msg: jerr.Error()}
		default:
			return nil, &configError{msg: err.Error()}
		}
	}
	return &config, nil
}

// defaultStoreConfig is used when store_config is missing.
var defaultStoreConfig = json.RawMessage(`{"use_adapter": "memory"}`)

// storeConfig returns the configured store config or the in-memory default.
func (c *configType) storeConfig() json.RawMessage {
	if len(c.StoreConfig) == 0 || string(c.StoreConfig) == "null" {
		return defaultStoreConfig
	}
	return c.StoreConfig
}

// providerTimeout returns the configured limit on provider calls.
func (c *configType) providerTimeout() time.Duration {
	if c.ProviderTimeout == nil {
		return coordinator.DefaultTimeout
	}
	if *c.ProviderTimeout <= 0 {
		return 0
	}
	return time.Duration(*c.ProviderTimeout) * time.Second
}

// listenAddr picks the address to listen on: the command line flag, then the environment,
// then the config file.
func listenAddr(flagValue, envValue, configValue string) string {
	addr := flagValue
	if addr == "" {
		addr = strings.TrimSpace(envValue)
	}
	if addr == "" {
		addr = configValue
	}
	if addr == "" {
		return defaultListen
	}
	if !strings.Contains(addr, ":") {
		// Bare port number.
		addr = ":" + addr
	}
	return addr
}
