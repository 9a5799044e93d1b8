package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"estately/config"
	"estately/models"
	"estately/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const refreshPath = "/users/token/refresh/"

// CredentialSource is the session store surface the client depends on. Every
// write is durably persisted by the implementation.
type CredentialSource interface {
	Get() models.Session
	Set(models.Session) error
	Clear() error
}

// Client issues requests against the remote API, attaching the current access
// token and transparently recovering from an expired one with a single
// refresh-and-retry. All other failures are returned to the caller unmodified
// and are never retried.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Creds   CredentialSource
	Limiter *rate.Limiter
	Logger  *zap.Logger

	// refreshGroup de-duplicates concurrent refresh calls: many 401s during
	// one expiry event issue exactly one refresh request.
	refreshGroup singleflight.Group
}

// NewClient builds a client from the loaded configuration.
func NewClient(creds CredentialSource) *Client {
	cfg := config.AppConfig
	rps := cfg.MaxRequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		BaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		HTTP:    &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSecs) * time.Second},
		Creds:   creds,
		Limiter: rate.NewLimiter(rate.Limit(rps), rps),
		Logger:  utils.GetLogger(),
	}
}

// GetJSON issues an authorized GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out, true)
}

// PostJSON issues an authorized POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, in, out, true)
}

// PatchJSON issues an authorized PATCH with a JSON body.
func (c *Client) PatchJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.doJSON(ctx, http.MethodPatch, path, nil, in, out, true)
}

// PostPublicJSON issues an unauthenticated POST. Login, registration and
// refresh go through here: a 401 on these endpoints means bad credentials,
// not an expired session, so the refresh path must not engage.
func (c *Client) PostPublicJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, in, out, false)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out interface{}, withAuth bool) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	resp, err := c.do(ctx, method, path, query, body, withAuth)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do issues the request once, and on an unauthorized response refreshes the
// access token and retries exactly once. The retried flag lives on this
// logical request, not on the client, so concurrent requests never share
// retry state.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, withAuth bool) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, networkError(err)
		}
	}

	token := ""
	if withAuth {
		token = c.Creds.Get().AccessToken
	}

	resp, err := c.send(ctx, method, path, query, body, token)
	if err != nil {
		return nil, networkError(err)
	}

	// A 401 with a token attached means the access token expired. A second
	// 401 after a fresh token is fatal, never a loop.
	if withAuth && token != "" && resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		fresh, refreshErr := c.refreshAccessToken(ctx, token)
		if refreshErr != nil {
			return nil, refreshErr
		}
		c.logger().Debug("retrying request with refreshed token",
			zap.String("method", method), zap.String("path", path))
		resp, err = c.send(ctx, method, path, query, body, fresh)
		if err != nil {
			return nil, networkError(err)
		}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, token string) (*http.Response, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient().Do(req)
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token. Concurrent callers share one in-flight refresh. On any failure the
// credential store is cleared and ErrSessionExpired is returned.
func (c *Client) refreshAccessToken(ctx context.Context, stale string) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		sess := c.Creds.Get()
		// Another caller already replaced the token while this one waited.
		if sess.AccessToken != "" && sess.AccessToken != stale {
			return sess.AccessToken, nil
		}
		if sess.RefreshToken == "" {
			return nil, fmt.Errorf("no refresh token in store")
		}

		var result struct {
			Access string `json:"access"`
		}
		payload := map[string]string{"refresh": sess.RefreshToken}
		if err := c.postRefresh(ctx, payload, &result); err != nil {
			return nil, err
		}
		if result.Access == "" {
			return nil, fmt.Errorf("refresh endpoint returned no access token")
		}

		sess = c.Creds.Get()
		sess.AccessToken = result.Access
		if err := c.Creds.Set(sess); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
		c.logger().Info("access token refreshed")
		return result.Access, nil
	})
	if err != nil {
		c.logger().Warn("token refresh failed, clearing session", zap.Error(err))
		if clearErr := c.Creds.Clear(); clearErr != nil {
			c.logger().Error("failed to clear credential store", zap.Error(clearErr))
		}
		return "", ErrSessionExpired
	}
	return v.(string), nil
}

func (c *Client) postRefresh(ctx context.Context, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, http.MethodPost, refreshPath, nil, body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return parseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
