// Package capsolve is a client for 2Captcha-compatible image CAPTCHA
// solving services: submit a base64 image, then poll until the service
// has an answer.
package capsolve

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Service error conditions reported by the upstream API.
var (
	ErrZeroBalance = errors.New("capsolve: account balance exhausted")
	ErrUnsolvable  = errors.New("capsolve: captcha reported unsolvable")
)

// Config configures a Solver.
type Config struct {
	// APIKey authenticates against the solving service. Required.
	APIKey string

	// BaseURL of the service. Default: https://2captcha.com.
	BaseURL string

	// PollInterval between result checks. Default: 5s.
	PollInterval time.Duration

	// HTTPClient overrides the default client. Meant for tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://2captcha.com"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Solver submits image CAPTCHAs and polls for the solution.
type Solver struct {
	cfg Config
}

// New creates a Solver from cfg.
func New(cfg Config) (*Solver, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("capsolve: api key is required")
	}
	cfg.defaults()
	return &Solver{cfg: cfg}, nil
}

// apiResponse is the JSON envelope of both endpoints.
type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// SolveImage submits raw image bytes and blocks until the service
// answers, the context is cancelled, or the service reports a terminal
// error.
func (s *Solver) SolveImage(ctx context.Context, image []byte) (string, error) {
	return s.solve(ctx, base64.StdEncoding.EncodeToString(image))
}

// SolveImageFile reads path and solves its content.
func (s *Solver) SolveImageFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("capsolve: read image %s: %w", path, err)
	}
	return s.SolveImage(ctx, data)
}

func (s *Solver) solve(ctx context.Context, imageBase64 string) (string, error) {
	id, err := s.submit(ctx, imageBase64)
	if err != nil {
		return "", err
	}
	s.cfg.Logger.Debug("capsolve: submitted", "captcha_id", id)

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("capsolve: cancelled while polling: %w", ctx.Err())
		case <-time.After(s.cfg.PollInterval):
		}

		text, ready, err := s.poll(ctx, id)
		if err != nil {
			return "", err
		}
		if ready {
			return text, nil
		}
	}
}

func (s *Solver) submit(ctx context.Context, imageBase64 string) (string, error) {
	form := url.Values{
		"key":    {s.cfg.APIKey},
		"method": {"base64"},
		"body":   {imageBase64},
		"json":   {"1"},
	}

	var resp apiResponse
	if err := s.call(ctx, "/in.php", form, &resp); err != nil {
		return "", err
	}
	switch {
	case resp.Request == "ERROR_ZERO_BALANCE":
		return "", ErrZeroBalance
	case resp.Status != 1:
		return "", fmt.Errorf("capsolve: submit rejected: %s", resp.Request)
	}
	return resp.Request, nil
}

func (s *Solver) poll(ctx context.Context, id string) (text string, ready bool, err error) {
	form := url.Values{
		"key":    {s.cfg.APIKey},
		"action": {"get"},
		"id":     {id},
		"json":   {"1"},
	}

	var resp apiResponse
	if err := s.call(ctx, "/res.php", form, &resp); err != nil {
		return "", false, err
	}
	switch {
	case resp.Request == "CAPCHA_NOT_READY":
		return "", false, nil
	case resp.Request == "ERROR_CAPTCHA_UNSOLVABLE":
		return "", false, ErrUnsolvable
	case resp.Status != 1:
		return "", false, fmt.Errorf("capsolve: poll failed: %s", resp.Request)
	}
	return resp.Request, true, nil
}

func (s *Solver) call(ctx context.Context, path string, form url.Values, out *apiResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("capsolve: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("capsolve: %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("capsolve: %s: unexpected status %d", path, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("capsolve: %s: decode response: %w", path, err)
	}
	return nil
}
