package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Maximum size of a response body which is read.
const maxResponseSize = 1 << 20

// Authorizer adds platform authentication to a request.
type Authorizer func(req *http.Request) error

// Client calls the REST API shared by both platforms: sessions and archives.
type Client struct {
	provider Kind
	baseURL  string
	project  string
	http     *http.Client
	auth     Authorizer
}

// NewClient creates a REST client for the platform. The project is the OpenTok API key or the
// Vonage application id.
func NewClient(provider Kind, baseURL, project string, hc *http.Client, auth Authorizer) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		project:  project,
		http:     hc,
		auth:     auth,
	}
}

// Do sends a request and decodes the JSON response into out, if out is not nil.
// The body is sent as a form if it's url.Values, as JSON otherwise.
func (c *Client) Do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	fail := func(err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				err = ErrTimeout
			} else {
				err = ctxErr
			}
		} else if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		return &Error{Provider: c.provider, Op: op, Err: err}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	var contentType string
	switch b := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		content, err := json.Marshal(b)
		if err != nil {
			return fail(err)
		}
		reader = bytes.NewReader(content)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.auth != nil {
		if err = c.auth(req); err != nil {
			return fail(err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fail(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var remote struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &remote) != nil || remote.Message == "" {
			remote.Message = http.StatusText(resp.StatusCode)
		}
		return &Error{Provider: c.provider, Op: op, Status: resp.StatusCode, Message: remote.Message}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err = json.Unmarshal(data, out); err != nil {
		return fail(errors.New("invalid response: " + err.Error()))
	}
	return nil
}

// CreateSession allocates a new routed session with manual archiving.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("archiveMode", "manual")
	form.Set("p2p.preference", "disabled")

	var sessions []struct {
		SessionID string `json:"session_id"`
	}
	if err := c.Do(ctx, "createSession", http.MethodPost, "/session/create", nil, form, &sessions); err != nil {
		return "", err
	}
	if len(sessions) == 0 || sessions[0].SessionID == "" {
		return "", &Error{Provider: c.provider, Op: "createSession", Err: errors.New("no session in response")}
	}
	return sessions[0].SessionID, nil
}

func (c *Client) archivePath() string {
	return "/v2/project/" + url.PathEscape(c.project) + "/archive"
}

// StartArchive starts a composed best-fit recording of the session.
func (c *Client) StartArchive(ctx context.Context, name, sessionID, resolution string) (*Archive, error) {
	req := map[string]interface{}{
		"sessionId":  sessionID,
		"name":       name,
		"outputMode": "composed",
		"resolution": resolution,
		"layout": map[string]string{
			"type":            "bestFit",
			"screenshareType": "bestFit",
		},
	}
	var resp remoteArchive
	if err := c.Do(ctx, "startArchive", http.MethodPost, c.archivePath(), nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.archive(), nil
}

// StopArchive stops a recording in progress.
func (c *Client) StopArchive(ctx context.Context, archiveID string) error {
	return c.Do(ctx, "stopArchive", http.MethodPost,
		c.archivePath()+"/"+url.PathEscape(archiveID)+"/stop", nil, nil, nil)
}

// ListArchives returns all archives of the session.
func (c *Client) ListArchives(ctx context.Context, sessionID string) ([]Archive, error) {
	query := url.Values{}
	query.Set("sessionId", sessionID)

	var resp archiveList
	if err := c.Do(ctx, "listArchives", http.MethodGet, c.archivePath(), query, nil, &resp); err != nil {
		return nil, err
	}

	archives := make([]Archive, 0, len(resp.Items))
	for i := range resp.Items {
		archives = append(archives, *resp.Items[i].archive())
	}
	return archives, nil
}
