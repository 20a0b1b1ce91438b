// Package provider defines the contract of a remote video platform: sessions, client tokens
// and server-side archives. Implementations live in subpackages and register themselves
// with Register.
package provider

//go:generate mockgen -destination=mock_provider/mock_provider.go -package=mock_provider github.com/vidroom/vidroom/server/provider VideoService

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"
)

// Kind identifies a video platform.
type Kind string

const (
	// KindOpenTok is the OpenTok (TokBox) platform. It's the default.
	KindOpenTok Kind = "opentok"
	// KindVonage is the Vonage Video API platform.
	KindVonage Kind = "vonage"
)

const (
	// DefaultTokenExpire is the lifetime of client tokens unless configured otherwise.
	DefaultTokenExpire = 24 * time.Hour
	// DefaultResolution is the resolution of composed archives.
	DefaultResolution = "1920x1080"
)

// SessionToken is a newly created session with a publisher token.
type SessionToken struct {
	SessionID string
	Token     string
}

// Token is a client token and the identity the client connects with: the OpenTok API key or
// the Vonage application id.
type Token struct {
	Token  string
	APIKey string
}

// Credential is everything a client needs to join a session.
type Credential struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	APIKey    string `json:"apiKey"`
}

// VideoService is implemented by every video platform.
type VideoService interface {
	// CreateSessionAndToken allocates a routed session and mints a publisher token for it.
	CreateSessionAndToken(ctx context.Context) (*SessionToken, error)
	// GenerateToken mints a publisher token for an existing session. The session id is not
	// checked with the platform.
	GenerateToken(ctx context.Context, sessionID string) (*Token, error)
	// StartArchive starts a composed recording of the session named after the room.
	StartArchive(ctx context.Context, roomName, sessionID string) (*Archive, error)
	// StopArchive stops the recording and returns its id.
	StopArchive(ctx context.Context, archiveID string) (string, error)
	// ListArchives returns archives of the session in the order the platform reports them.
	ListArchives(ctx context.Context, sessionID string) ([]Archive, error)
	// GetCredentials creates a new session and returns credentials to join it.
	GetCredentials(ctx context.Context) (*Credential, error)
}

// Options are platform-independent settings, from the provider_config section of the config file.
type Options struct {
	// Base URL of the REST API, e.g. for a regional endpoint or a test server.
	APIURL string `json:"api_url,omitempty"`
	// Lifetime of client tokens in seconds.
	TokenExpireIn int `json:"token_expire_in,omitempty"`
	// Resolution of composed archives, like "1280x720".
	ArchiveResolution string `json:"archive_resolution,omitempty"`

	// HTTP client for REST calls. http.DefaultClient if nil.
	HTTPClient *http.Client `json:"-"`
}

// TokenExpire returns the configured token lifetime or the default.
func (o Options) TokenExpire() time.Duration {
	if o.TokenExpireIn > 0 {
		return time.Duration(o.TokenExpireIn) * time.Second
	}
	return DefaultTokenExpire
}

// Resolution returns the configured archive resolution or the default.
func (o Options) Resolution() string {
	if o.ArchiveResolution != "" {
		return o.ArchiveResolution
	}
	return DefaultResolution
}

// Factory creates a VideoService from credentials of its kind.
type Factory func(creds Credentials, opts Options) (VideoService, error)

var factories map[Kind]Factory

// Register makes a video platform available by kind.
// If Register is called twice with the same kind or if factory is nil, it panics.
func Register(kind Kind, factory Factory) {
	if factories == nil {
		factories = make(map[Kind]Factory)
	}

	if factory == nil {
		panic("provider: Register factory is nil")
	}

	if _, dup := factories[kind]; dup {
		panic("provider: Register called twice for " + string(kind))
	}

	factories[kind] = factory
}

// New creates the VideoService matching the kind of the credentials.
func New(creds Credentials, opts Options) (VideoService, error) {
	if creds == nil {
		return nil, errors.New("provider: missing credentials")
	}
	factory := factories[creds.Kind()]
	if factory == nil {
		return nil, errors.New("provider: unknown or unregistered provider '" + string(creds.Kind()) + "'")
	}
	return factory(creds, opts)
}

// Registered returns kinds of registered providers, sorted.
func Registered() []Kind {
	kinds := make([]Kind, 0, len(factories))
	for kind := range factories {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
