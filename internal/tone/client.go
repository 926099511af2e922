package tone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNoToneCategories = errors.New("tone response has no tone categories")

// Tone is one scored tone of a category, passed through from the analyzer.
type Tone struct {
	Score    float64 `json:"score"`
	ToneID   string  `json:"tone_id"`
	ToneName string  `json:"tone_name"`
}

// StatusError is returned when the analyzer answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tone analyzer http status %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }

// Analyzer scores a block of text.
type Analyzer interface {
	Tone(ctx context.Context, text string) ([]Tone, error)
}

type ClientConfig struct {
	URL      string
	Username string
	Password string
	Version  string
	// Timeout of zero leaves the request bounded only by its context.
	Timeout time.Duration
}

// Client talks to the Watson Tone Analyzer v3 REST API.
type Client struct {
	endpoint string
	username string
	password string
	client   *http.Client
}

type toneRequest struct {
	Text string `json:"text"`
}

type toneResponse struct {
	DocumentTone struct {
		ToneCategories []struct {
			CategoryID   string `json:"category_id"`
			CategoryName string `json:"category_name"`
			Tones        []Tone `json:"tones"`
		} `json:"tone_categories"`
	} `json:"document_tone"`
}

func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint, err := url.JoinPath(strings.TrimSpace(cfg.URL), "v3", "tone")
	if err != nil {
		return nil, fmt.Errorf("tone analyzer url: %w", err)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("tone analyzer url: %w", err)
	}
	q := u.Query()
	q.Set("version", cfg.Version)
	u.RawQuery = q.Encode()

	return &Client{
		endpoint: u.String(),
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Tone returns the tones of the first category in the analyzer's response.
func (c *Client) Tone(ctx context.Context, text string) ([]Tone, error) {
	payload, err := json.Marshal(toneRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded toneResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	categories := decoded.DocumentTone.ToneCategories
	if len(categories) == 0 {
		return nil, ErrNoToneCategories
	}
	tones := categories[0].Tones
	if tones == nil {
		tones = []Tone{}
	}
	return tones, nil
}
