// Package github counts students' commits through the GitHub REST API.
// It backs the activity report: one request per week window between the two
// control points of the course.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
	"github.com/alem-hub/taskchecker/pkg/circuitbreaker"
	"github.com/alem-hub/taskchecker/pkg/logger"
	"github.com/alem-hub/taskchecker/pkg/retry"
	"github.com/alem-hub/taskchecker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the GitHub client.
type ClientConfig struct {
	// BaseURL is the API root, https://api.github.com for github.com.
	BaseURL string

	// Token is sent as "Authorization: token <Token>" when set.
	Token string

	// DefaultRepository is used with the student's nickname as owner when the
	// student's repository URL does not point at GitHub.
	DefaultRepository string

	// PerPage is the page size of commit listings, at most 100.
	PerPage int

	Timeout           time.Duration
	RateLimiterConfig RateLimiterConfig
	Logger            *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		BaseURL:           "https://api.github.com",
		Token:             token,
		DefaultRepository: "OOP",
		PerPage:           100,
		Timeout:           30 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is safe for concurrent use by every worker of a run.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *RateLimiter
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
}

// NewClient creates a GitHub client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.PerPage <= 0 || config.PerPage > 100 {
		config.PerPage = 100
	}
	log := config.Logger.With(logger.Component("github"))

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     log,
		limiter:    NewRateLimiter(config.RateLimiterConfig),
		breaker: circuitbreaker.GitHubAPIBreaker(
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
			isTransient,
		),
		retrier: retry.GitHubAPIRetrier(isTransient, func(attempt int, err error, delay time.Duration) {
			log.Debug("retrying github request", "attempt", attempt, "delay", delay, logger.Err(err))
		}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMIT ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyCommits counts the student's commits in consecutive seven-day windows
// from start to end, both inclusive. The last window may be shorter.
func (c *Client) WeeklyCommits(ctx context.Context, student grading.Student, start, end shared.Date) ([]grading.WeeklyCommits, error) {
	owner, repo := c.repository(student)
	windows := timeutil.WeekWindows(start.Time(), end.Time())

	weeks := make([]grading.WeeklyCommits, 0, len(windows))
	for _, w := range windows {
		n, err := c.CountCommits(ctx, owner, repo, w.Since(), w.Until())
		if err != nil {
			return nil, fmt.Errorf("commits of %s/%s for week ending %s: %w", owner, repo, w.To.Format(time.DateOnly), err)
		}
		weeks = append(weeks, grading.WeeklyCommits{WeekEnd: shared.DateOf(w.To), Commits: n})
	}
	return weeks, nil
}

// CountCommits counts commits on the default branch between since and until.
// An empty repository has no commits.
func (c *Client) CountCommits(ctx context.Context, owner, repo string, since, until time.Time) (int, error) {
	path := fmt.Sprintf("/repos/%s/%s/commits", url.PathEscape(owner), url.PathEscape(repo))
	total := 0

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("since", since.UTC().Format(time.RFC3339))
		params.Set("until", until.UTC().Format(time.RFC3339))
		params.Set("per_page", strconv.Itoa(c.config.PerPage))
		params.Set("page", strconv.Itoa(page))

		var commits []commitDTO
		err := c.doRequest(ctx, path+"?"+params.Encode(), &commits)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}

		total += len(commits)
		if len(commits) < c.config.PerPage {
			return total, nil
		}
	}
}

// repository resolves the GitHub repository of a student.
func (c *Client) repository(student grading.Student) (owner, repo string) {
	if owner, repo, ok := ParseRepository(student.Repository); ok {
		return owner, repo
	}
	return student.Nickname, c.config.DefaultRepository
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type commitDTO struct {
	SHA string `json:"sha"`
}

// doRequest performs a GET with rate limiting, circuit breaking and retries.
func (c *Client) doRequest(ctx context.Context, path string, result any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
			return c.doSingleRequest(ctx, path, result)
		})
	})
}

func (c *Client) doSingleRequest(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "token "+c.config.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("github api request",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		logger.Latency(time.Since(start)),
	)

	if until, ok := rateLimitReset(resp); ok {
		c.limiter.BlockUntil(until)
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			return &RateLimitError{
				RetryAfter: time.Until(until),
				Message:    "github rate limit exceeded until " + until.Format(time.RFC3339),
			}
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// rateLimitReset reports when requests may resume if the server signalled an
// exhausted budget.
func rateLimitReset(resp *http.Response) (time.Time, bool) {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil {
			return time.Now().Add(time.Duration(seconds) * time.Second), true
		}
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "0" {
		return time.Time{}, false
	}
	reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return time.Now().Add(time.Minute), true
	}
	return time.Unix(reset, 0), true
}

// isTransient reports whether a request may succeed if sent again. Only such
// errors are retried and count against the circuit breaker.
func isTransient(err error) bool {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is an error response of the GitHub API.
type APIError struct {
	StatusCode       int    `json:"-"`
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: status %d", e.StatusCode)
	}
	return fmt.Sprintf("github: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code onto the shared error kinds.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case e.StatusCode >= 500:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrExternalService
	}
}
