// Package cloudinary lists uploaded images through the Cloudinary Admin API.
package cloudinary

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

	"go.uber.org/zap"
)

// APIError is a non-2xx answer from Cloudinary.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudinary: http %d", e.StatusCode)
}

type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// Folder is used as prefix when the caller gives none.
	Folder  string
	Timeout time.Duration
	// BaseURL overrides https://api.cloudinary.com.
	BaseURL string
}

type Client struct {
	baseURL string
	cloud   string
	key     string
	secret  string
	folder  string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.cloudinary.com"
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		cloud:   cfg.CloudName,
		key:     cfg.APIKey,
		secret:  cfg.APISecret,
		folder:  cfg.Folder,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

type Image struct {
	PublicID  string    `json:"public_id"`
	Format    string    `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Bytes     int64     `json:"bytes"`
	URL       string    `json:"secure_url"`
	CreatedAt time.Time `json:"created_at"`
}

type Page struct {
	Images     []Image `json:"resources"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

const maxResults = 100

// ListImages returns one page of uploaded images under prefix. cursor is the
// NextCursor of the previous page, empty for the first one.
func (c *Client) ListImages(ctx context.Context, prefix, cursor string, limit int) (Page, error) {
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}
	if prefix == "" {
		prefix = c.folder
	}
	q := url.Values{}
	q.Set("type", "upload")
	q.Set("max_results", strconv.Itoa(limit))
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if cursor != "" {
		q.Set("next_cursor", cursor)
	}
	u := fmt.Sprintf("%s/v1_1/%s/resources/image?%s", c.baseURL, url.PathEscape(c.cloud), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Page{}, err
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("cloudinary: list images: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Page{}, err
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("cloudinary request failed", zap.Int("status", resp.StatusCode), zap.String("body", string(raw)))
		return Page{}, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return Page{}, fmt.Errorf("cloudinary: decode: %w", err)
	}
	if page.Images == nil {
		page.Images = []Image{}
	}
	return page, nil
}
