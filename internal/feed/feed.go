package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"support-feed-worker/internal/models"
)

// Client fetches the page of entries that follow a marker. An empty page is
// the normal caught-up condition. Clients do not retry.
type Client interface {
	Fetch(ctx context.Context, marker models.Marker, filter Filter) ([]models.FeedEntry, error)
}

// Filter is an OR over category terms.
type Filter struct {
	Terms []string
}

// Search renders the filter in feed search syntax: (OR(cat=type:a)(cat=type:b)).
func (f Filter) Search() string {
	if len(f.Terms) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("(OR")
	for _, term := range f.Terms {
		fmt.Fprintf(&b, "(cat=type:%s)", term)
	}
	b.WriteString(")")
	return b.String()
}

type HTTPConfig struct {
	URL         string
	Token       string
	PageSize    int
	NewestFirst bool
	Timeout     time.Duration
	// MaxPageBytes caps a page body. Zero derives it from PageSize.
	MaxPageBytes int64
}

// maxEntryBytes is the body budget per requested entry.
const maxEntryBytes = 256 << 10

type HTTPClient struct {
	url          string
	token        string
	pageSize     int
	newestFirst  bool
	maxPageBytes int64
	httpClient   *http.Client
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxPageBytes := cfg.MaxPageBytes
	if maxPageBytes <= 0 {
		maxPageBytes = int64(max(cfg.PageSize, 25)) * maxEntryBytes
	}
	return &HTTPClient{
		url:          strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		token:        strings.TrimSpace(cfg.Token),
		pageSize:     cfg.PageSize,
		newestFirst:  cfg.NewestFirst,
		maxPageBytes: maxPageBytes,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type feedDocument struct {
	Feed struct {
		Entry []feedEntry `json:"entry"`
	} `json:"feed"`
}

type feedEntry struct {
	ID       string `json:"id"`
	Category []struct {
		Term string `json:"term"`
	} `json:"category"`
	Content struct {
		Event json.RawMessage `json:"event"`
	} `json:"content"`
}

// Fetch returns entries oldest first. Feeds that render pages newest first
// are reversed when NewestFirst is set.
func (c *HTTPClient) Fetch(ctx context.Context, marker models.Marker, filter Filter) ([]models.FeedEntry, error) {
	params := url.Values{}
	params.Set("marker", string(marker))
	if search := filter.Search(); search != "" {
		params.Set("search", search)
	}
	if c.pageSize > 0 {
		params.Set("limit", strconv.Itoa(c.pageSize))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.rackspace.atom+json")
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read feed page: %w", err)
	}
	if int64(len(body)) > c.maxPageBytes {
		return nil, fmt.Errorf("feed page exceeds %d bytes", c.maxPageBytes)
	}

	var doc feedDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}

	entries := make([]models.FeedEntry, 0, len(doc.Feed.Entry))
	for _, raw := range doc.Feed.Entry {
		entries = append(entries, toEntry(raw))
	}
	if c.newestFirst {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

func toEntry(raw feedEntry) models.FeedEntry {
	categories := make([]string, 0, len(raw.Category))
	for _, c := range raw.Category {
		categories = append(categories, c.Term)
	}
	return models.FeedEntry{
		ID:         models.Marker(strings.TrimSpace(raw.ID)),
		Categories: categories,
		Payload:    raw.Content.Event,
	}
}
