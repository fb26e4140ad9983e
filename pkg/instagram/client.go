package instagram

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"igarchiver/pkg/config"
	"igarchiver/pkg/errors"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/ratelimit"
	"igarchiver/pkg/retry"
)

// Options configures a Client
type Options struct {
	Timeout   time.Duration
	UserAgent string
	SessionID string
	CSRFToken string
	// BaseURL overrides BaseURL for the API endpoints (tests)
	BaseURL string
	// Cooldown is how long the limiter pauses after a 429
	Cooldown time.Duration
	// BreakerThreshold is the number of consecutive soft failures that open the circuit
	BreakerThreshold int
	Retry            *retry.Policy
	Limiter          ratelimit.Limiter
}

// Client talks to Instagram's web API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	logger     logger.Logger
	limiter    ratelimit.Limiter
	policy     *retry.Policy
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	cooldown   time.Duration
}

// NewClient creates a client with default retry, limiter and breaker settings
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	return NewClientWithOptions(Options{Timeout: timeout}, log)
}

// NewClientFromConfig creates a client from the loaded configuration
func NewClientFromConfig(cfg *config.Config, log logger.Logger) *Client {
	return NewClientWithOptions(Options{
		Timeout:          cfg.Download.DownloadTimeout,
		UserAgent:        cfg.Instagram.UserAgent,
		SessionID:        cfg.Instagram.SessionID,
		CSRFToken:        cfg.Instagram.CSRFToken,
		Cooldown:         cfg.RateLimit.Cooldown,
		BreakerThreshold: cfg.Download.BreakerThreshold,
		Retry:            retry.FromConfig(&cfg.Retry, log),
		Limiter:          ratelimit.FromConfig(&cfg.RateLimit),
	}, log)
}

// NewClientWithOptions creates a client from explicit options
func NewClientWithOptions(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.DefaultConfig().Instagram.UserAgent
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultPolicy()
		opts.Retry.Logger = log
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited()
	}

	c := &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		headers: map[string]string{
			"User-Agent":       opts.UserAgent,
			"Accept":           "*/*",
			"Accept-Language":  "en-US,en;q=0.9",
			"X-IG-App-ID":      WebAppID,
			"X-Requested-With": "XMLHttpRequest",
			"Referer":          BaseURL + "/",
		},
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		logger:   log,
		limiter:  opts.Limiter,
		policy:   opts.Retry,
		cooldown: opts.Cooldown,
	}
	c.SetSession(opts.SessionID, opts.CSRFToken)
	c.breaker = c.newBreaker(uint32(opts.BreakerThreshold))
	return c
}

// newBreaker opens the circuit after threshold consecutive soft failures.
// Hard failures such as 404 do not count against it.
func (c *Client) newBreaker(threshold uint32) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "instagram",
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.IsSoft(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WarnWithFields("circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
}

// SetSession installs the session cookies used for authenticated requests
func (c *Client) SetSession(sessionID, csrfToken string) {
	if sessionID == "" {
		delete(c.headers, "Cookie")
		delete(c.headers, "X-CSRFToken")
		return
	}
	cookie := "sessionid=" + sessionID
	if csrfToken != "" {
		cookie += "; csrftoken=" + csrfToken
		c.headers["X-CSRFToken"] = csrfToken
	}
	c.headers["Cookie"] = cookie
}

// HasSession reports whether session cookies are configured
func (c *Client) HasSession() bool {
	_, ok := c.headers["Cookie"]
	return ok
}

// get performs one rate limited API GET through the circuit breaker. On
// success the caller owns the response body.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.fetch(ctx, rawURL)
}

// fetch is get without the API limiter. CDN media requests use it; the
// download pool applies its own limiter.
func (c *Client) fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.doRequest(ctx, rawURL)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Wrap(errors.ErrorTypeCircuitOpen, err, "too many consecutive failures, giving Instagram a break")
	}
	return resp, err
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      rawURL,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errors.Wrap(errors.ErrorTypeNetwork, err, "network error")
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// checkResponseStatus maps HTTP status codes to typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	path := ""
	if resp.Request != nil {
		path = resp.Request.URL.Path
	}

	if strings.Contains(path, "/accounts/login") {
		return errors.New(errors.ErrorTypeAuth, code, "redirected to login page")
	}

	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return errors.New(errors.ErrorTypeAuth, code, "authentication required")
	case code == http.StatusForbidden:
		return errors.New(errors.ErrorTypeForbidden, code, "access forbidden")
	case code == http.StatusNotFound:
		return errors.New(errors.ErrorTypeNotFound, code, "resource not found")
	case code == http.StatusTooManyRequests:
		if c.cooldown > 0 {
			logger.LogRateLimit(c.logger, path, c.cooldown.String())
			c.limiter.Pause(c.cooldown)
		}
		return errors.New(errors.ErrorTypeRateLimit, code, "rate limit exceeded")
	case code >= 500:
		return errors.New(errors.ErrorTypeServerError, code, "server error")
	default:
		return errors.New(errors.ErrorTypeUnknown, code, fmt.Sprintf("unexpected status code: %d", code))
	}
}

// getJSON fetches path from the API base URL and decodes it into target,
// retrying per the client's policy
func (c *Client) getJSON(ctx context.Context, path string, target interface{}) error {
	rawURL := c.baseURL + path

	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		resp, err := c.get(ctx, rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(errors.ErrorTypeNetwork, err, "failed to read response body")
		}

		if err := json.Unmarshal(body, target); err != nil {
			preview := string(body)
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"url":          rawURL,
				"error":        err.Error(),
				"body_preview": preview,
			})
			return errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse JSON")
		}
		return nil
	})
}

// failStatus turns a 200 {"status":"fail"} body into a typed error
func failStatus(status, message string) error {
	if status != "fail" {
		return nil
	}
	if strings.Contains(strings.ToLower(message), "wait") {
		return errors.New(errors.ErrorTypeRateLimit, http.StatusOK, message)
	}
	return errors.New(errors.ErrorTypeUnknown, http.StatusOK, message)
}

// FetchProfile fetches a user's profile including the first page of posts
func (c *Client) FetchProfile(ctx context.Context, username string) (*User, error) {
	var response InstagramResponse
	if err := c.getJSON(ctx, ProfilePath(username), &response); err != nil {
		return nil, err
	}
	if err := failStatus(response.Status, response.Message); err != nil {
		return nil, err
	}
	if response.RequiresToLogin {
		return nil, errors.New(errors.ErrorTypeAuth, http.StatusUnauthorized,
			"Instagram requires authentication to view this profile")
	}
	if response.Data.User == nil {
		return nil, errors.New(errors.ErrorTypeNotFound, http.StatusNotFound,
			fmt.Sprintf("profile %q does not exist", username))
	}

	c.logger.DebugWithFields("fetched user profile", map[string]interface{}{
		"username": username,
		"user_id":  response.Data.User.ID,
		"posts":    response.Data.User.EdgeOwnerToTimelineMedia.Count,
	})
	return response.Data.User, nil
}

// FetchTimeline fetches one page of a user's posts after the given cursor
func (c *Client) FetchTimeline(ctx context.Context, userID, after string, limit int) (*EdgeOwnerToTimelineMedia, error) {
	var response InstagramResponse
	if err := c.getJSON(ctx, TimelinePath(userID, after, limit), &response); err != nil {
		return nil, err
	}
	if err := failStatus(response.Status, response.Message); err != nil {
		return nil, err
	}
	if response.Data.User == nil {
		return nil, errors.New(errors.ErrorTypeParsing, http.StatusOK, "timeline response has no user")
	}
	return &response.Data.User.EdgeOwnerToTimelineMedia, nil
}

// FetchPost fetches a single post, which carries video_url for videos
func (c *Client) FetchPost(ctx context.Context, shortcode string) (*Node, error) {
	var response PostResponse
	if err := c.getJSON(ctx, PostPath(shortcode), &response); err != nil {
		return nil, err
	}
	if err := failStatus(response.Status, response.Message); err != nil {
		return nil, err
	}
	if response.Data.ShortcodeMedia == nil {
		return nil, errors.New(errors.ErrorTypeNotFound, http.StatusNotFound,
			fmt.Sprintf("post %s not found", shortcode))
	}
	return response.Data.ShortcodeMedia, nil
}

// Download fetches a media file. mediaURL is absolute (CDN URLs come from
// the API responses).
func (c *Client) Download(ctx context.Context, mediaURL string) ([]byte, error) {
	return retry.DoWithResult(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		resp, err := c.fetch(ctx, mediaURL)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeNetwork, err, "failed to read media")
		}
		return data, nil
	})
}
