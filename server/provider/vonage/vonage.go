// Package vonage implements provider.VideoService for the Vonage Video API.
package vonage

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidroom/vidroom/server/provider"
)

const (
	defaultAPIURL = "https://video.api.vonage.com"

	// Lifetime of the application JWT used for REST calls.
	authExpire = 5 * time.Minute

	rolePublisher = "publisher"
)

type service struct {
	appID      string
	key        *rsa.PrivateKey
	expire     time.Duration
	resolution string
	client     *provider.Client

	// Current time, replaced in tests.
	now func() time.Time
}

// New creates a Vonage video service. The credentials must be provider.VonageCredentials.
func New(creds provider.Credentials, opts provider.Options) (provider.VideoService, error) {
	vc, ok := creds.(provider.VonageCredentials)
	if !ok {
		return nil, errors.New("vonage: invalid credentials type")
	}
	if vc.ApplicationID == "" || vc.PrivateKey == "" {
		return nil, &provider.ConfigError{Provider: string(provider.KindVonage), Reason: "empty application id or private key"}
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(vc.PrivateKey))
	if err != nil {
		return nil, &provider.ConfigError{Provider: string(provider.KindVonage), Reason: "invalid private key: " + err.Error()}
	}

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	svc := &service{
		appID:      vc.ApplicationID,
		key:        key,
		expire:     opts.TokenExpire(),
		resolution: opts.Resolution(),
		now:        time.Now,
	}
	svc.client = provider.NewClient(provider.KindVonage, apiURL, vc.ApplicationID, opts.HTTPClient, svc.authorize)
	return svc, nil
}

func (s *service) sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
}

// authorize adds an application JWT to the request.
func (s *service) authorize(req *http.Request) error {
	now := s.now()
	signed, err := s.sign(jwt.MapClaims{
		"application_id": s.appID,
		"iat":            now.Unix(),
		"exp":            now.Add(authExpire).Unix(),
		"jti":            uuid.NewString(),
	})
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+signed)
	return nil
}

func (s *service) CreateSessionAndToken(ctx context.Context) (*provider.SessionToken, error) {
	sessionID, err := s.client.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	token, err := s.token(sessionID)
	if err != nil {
		return nil, err
	}
	return &provider.SessionToken{SessionID: sessionID, Token: token}, nil
}

func (s *service) GenerateToken(ctx context.Context, sessionID string) (*provider.Token, error) {
	token, err := s.token(sessionID)
	if err != nil {
		return nil, err
	}
	return &provider.Token{Token: token, APIKey: s.appID}, nil
}

// token signs a client JWT allowing a publisher to connect to the session.
func (s *service) token(sessionID string) (string, error) {
	if sessionID == "" {
		return "", &provider.Error{Provider: provider.KindVonage, Op: "generateToken", Err: errors.New("empty session id")}
	}

	now := s.now()
	signed, err := s.sign(jwt.MapClaims{
		"application_id":            s.appID,
		"scope":                     "session.connect",
		"session_id":                sessionID,
		"role":                      rolePublisher,
		"initial_layout_class_list": "",
		"sub":                       "video",
		"acl": map[string]interface{}{
			"paths": map[string]interface{}{"/session/**": map[string]interface{}{}},
		},
		"iat": now.Unix(),
		"exp": now.Add(s.expire).Unix(),
		"jti": uuid.NewString(),
	})
	if err != nil {
		return "", &provider.Error{Provider: provider.KindVonage, Op: "generateToken", Err: err}
	}
	return signed, nil
}

func (s *service) StartArchive(ctx context.Context, roomName, sessionID string) (*provider.Archive, error) {
	return s.client.StartArchive(ctx, roomName, sessionID, s.resolution)
}

func (s *service) StopArchive(ctx context.Context, archiveID string) (string, error) {
	if err := s.client.StopArchive(ctx, archiveID); err != nil {
		return "", err
	}
	return archiveID, nil
}

func (s *service) ListArchives(ctx context.Context, sessionID string) ([]provider.Archive, error) {
	return s.client.ListArchives(ctx, sessionID)
}

func (s *service) GetCredentials(ctx context.Context) (*provider.Credential, error) {
	st, err := s.CreateSessionAndToken(ctx)
	if err != nil {
		return nil, err
	}
	return &provider.Credential{SessionID: st.SessionID, Token: st.Token, APIKey: s.appID}, nil
}

func init() {
	provider.Register(provider.KindVonage, New)
}
