package teams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNotFound = errors.New("team not found")

// Details is the authoritative description of a support team.
type Details struct {
	Name        string `json:"name"`
	CoreSegment string `json:"core_segment"`
	Region      string `json:"region"`
	Description string `json:"description"`
}

type Service interface {
	GetTeam(ctx context.Context, teamNumber string) (Details, error)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) GetTeam(ctx context.Context, teamNumber string) (Details, error) {
	teamNumber = strings.TrimSpace(teamNumber)
	if teamNumber == "" {
		return Details{}, fmt.Errorf("team number is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/teams/"+url.PathEscape(teamNumber), nil)
	if err != nil {
		return Details{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Details{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Details{}, fmt.Errorf("team %s: %w", teamNumber, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Details{}, fmt.Errorf("get team %s failed (%d): %s", teamNumber, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var details Details
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return Details{}, fmt.Errorf("decode team %s: %w", teamNumber, err)
	}
	return details, nil
}
