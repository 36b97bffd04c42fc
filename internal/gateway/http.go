package gateway

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/readwellapp/readwell-sync/internal/domain"
	"github.com/readwellapp/readwell-sync/internal/errors"
	"github.com/readwellapp/readwell-sync/internal/http/response"
)

// TokenSource supplies the bearer token presented to the replica server.
// The auth service implements this with the token minted at login.
type TokenSource interface {
	AccessToken() (string, error)
}

// HTTP is a Gateway that talks to a replica server over REST.
type HTTP struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

// NewHTTP creates an HTTP gateway for the given replica base URL.
func NewHTTP(baseURL string, tokens TokenSource) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}
}

// Upload PUTs the snapshot to the replica.
func (g *HTTP) Upload(ctx context.Context, snapshot *domain.Snapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPut, snapshot.UserID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Unavailablef("replica unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return g.errorFromResponse(resp)
}

// Download GETs the stored snapshot. A replica that has never seen the user
// returns errors.ErrNotFound.
func (g *HTTP) Download(ctx context.Context, userID string) (*domain.Snapshot, error) {
	req, err := g.newRequest(ctx, http.MethodGet, userID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Unavailablef("replica unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.errorFromResponse(resp)
	}

	var envelope struct {
		Data    *domain.Snapshot `json:"data"`
		Success bool             `json:"success"`
	}
	if err := json.UnmarshalRead(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if envelope.Data == nil {
		return nil, errors.Internal("replica returned empty body")
	}
	return envelope.Data, nil
}

func (g *HTTP) newRequest(ctx context.Context, method, userID string, body io.Reader) (*http.Request, error) {
	token, err := g.tokens.AccessToken()
	if err != nil {
		return nil, errors.Unauthorized("no access token available").WithCause(err)
	}

	endpoint := g.baseURL + "/api/v1/replica/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// errorFromResponse maps replica status codes onto domain errors. 5xx and
// rate limiting are retryable; everything else surfaces as-is.
func (g *HTTP) errorFromResponse(resp *http.Response) error {
	var envelope response.Envelope
	msg := resp.Status
	if err := json.UnmarshalRead(resp.Body, &envelope); err == nil && envelope.Error != "" {
		msg = envelope.Error
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.NotFound(msg)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return errors.Unauthorized(msg)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return errors.Unavailable(msg)
	default:
		return errors.Internal(msg)
	}
}
