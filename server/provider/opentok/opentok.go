// Package opentok implements provider.VideoService for the OpenTok platform.
package opentok

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidroom/vidroom/server/provider"
)

const (
	defaultAPIURL = "https://api.opentok.com"

	authHeader = "X-OPENTOK-AUTH"
	// Lifetime of the project authentication JWT.
	authExpire = 5 * time.Minute

	tokenSentinel = "T1=="
	rolePublisher = "publisher"
)

type service struct {
	apiKey     string
	apiSecret  string
	expire     time.Duration
	resolution string
	client     *provider.Client

	// Current time, replaced in tests.
	now func() time.Time
}

// New creates an OpenTok video service. The credentials must be provider.OpenTokCredentials.
func New(creds provider.Credentials, opts provider.Options) (provider.VideoService, error) {
	otc, ok := creds.(provider.OpenTokCredentials)
	if !ok {
		return nil, errors.New("opentok: invalid credentials type")
	}
	if otc.APIKey == "" || otc.APISecret == "" {
		return nil, &provider.ConfigError{Provider: string(provider.KindOpenTok), Reason: "empty API key or secret"}
	}

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	svc := &service{
		apiKey:     otc.APIKey,
		apiSecret:  otc.APISecret,
		expire:     opts.TokenExpire(),
		resolution: opts.Resolution(),
		now:        time.Now,
	}
	svc.client = provider.NewClient(provider.KindOpenTok, apiURL, otc.APIKey, opts.HTTPClient, svc.authorize)
	return svc, nil
}

// authorize adds a project-level JWT to the request.
func (s *service) authorize(req *http.Request) error {
	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.apiKey,
		"ist": "project",
		"iat": now.Unix(),
		"exp": now.Add(authExpire).Unix(),
		"jti": uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.apiSecret))
	if err != nil {
		return err
	}
	req.Header.Set(authHeader, signed)
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
	return &provider.Token{Token: token, APIKey: s.apiKey}, nil
}

// token signs a publisher token: "T1==" + base64("partner_id=..&sig=<hmac>:<data>").
func (s *service) token(sessionID string) (string, error) {
	if sessionID == "" {
		return "", &provider.Error{Provider: provider.KindOpenTok, Op: "generateToken", Err: errors.New("empty session id")}
	}

	now := s.now()
	data := url.Values{}
	data.Set("session_id", sessionID)
	data.Set("create_time", strconv.FormatInt(now.Unix(), 10))
	data.Set("expire_time", strconv.FormatInt(now.Add(s.expire).Unix(), 10))
	data.Set("role", rolePublisher)
	data.Set("nonce", uuid.NewString())
	data.Set("initial_layout_class_list", "")
	encoded := data.Encode()

	mac := hmac.New(sha1.New, []byte(s.apiSecret))
	mac.Write([]byte(encoded))
	sig := hex.EncodeToString(mac.Sum(nil))

	payload := "partner_id=" + s.apiKey + "&sig=" + sig + ":" + encoded
	return tokenSentinel + base64.StdEncoding.EncodeToString([]byte(payload)), nil
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
	return &provider.Credential{SessionID: st.SessionID, Token: st.Token, APIKey: s.apiKey}, nil
}

func init() {
	provider.Register(provider.KindOpenTok, New)
}
