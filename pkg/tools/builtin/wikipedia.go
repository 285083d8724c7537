// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package builtin provides the tools shipped with chatflow.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/httpclient"
	"github.com/tombee/chatflow/pkg/tools"
)

const (
	// WikipediaToolName is the id agent nodes select.
	WikipediaToolName = "wikipedia-query"

	defaultWikipediaURL = "https://en.wikipedia.org"
	defaultSearchLimit  = 5
	maxSearchLimit      = 20
)

// WikipediaOptions configures the Wikipedia tool.
type WikipediaOptions struct {
	// BaseURL defaults to https://en.wikipedia.org.
	BaseURL string

	// RateLimit caps requests per second. Zero means 5.
	RateLimit float64

	Timeout time.Duration
	Logger  *slog.Logger
}

// WikipediaTool searches Wikipedia and fetches article summaries.
type WikipediaTool struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewWikipediaTool creates the tool.
func NewWikipediaTool(opts WikipediaOptions) (*WikipediaTool, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultWikipediaURL
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := httpclient.DefaultConfig()
	cfg.RateLimit = opts.RateLimit
	cfg.RateBurst = 2
	cfg.Logger = opts.Logger
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating wikipedia client: %w", err)
	}

	return &WikipediaTool{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  client,
		logger:  opts.Logger.With("tool", WikipediaToolName),
	}, nil
}

func (w *WikipediaTool) Name() string { return WikipediaToolName }

func (w *WikipediaTool) Description() string {
	return "Search Wikipedia articles or get article summaries"
}

func (w *WikipediaTool) Schema() *tools.Schema {
	return &tools.Schema{
		Type: "object",
		Properties: map[string]*tools.Property{
			"action": {
				Type:        "string",
				Description: "search to find articles, summary to read one article",
				Enum:        []interface{}{"search", "summary"},
				Default:     "search",
			},
			"query": {
				Type:        "string",
				Description: "Search terms, or the article title for summary",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of search results (1-20)",
				Default:     defaultSearchLimit,
			},
		},
		Required: []string{"query"},
	}
}

// Execute runs a search or summary request.
func (w *WikipediaTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	query, _ := inputs["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &errors.ValidationError{Field: "query", Message: "must be a non-empty string"}
	}

	action, _ := inputs["action"].(string)
	switch action {
	case "", "search":
		return w.search(ctx, query, searchLimit(inputs["limit"]))
	case "summary":
		return w.summary(ctx, query)
	default:
		return nil, &errors.ValidationError{
			Field:   "action",
			Message: fmt.Sprintf("unknown action %q", action),
			Hint:    "Use search or summary",
		}
	}
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			PageID  int    `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

func (w *WikipediaTool) search(ctx context.Context, query string, limit int) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(limit))
	params.Set("format", "json")
	params.Set("utf8", "1")

	var resp searchResponse
	if err := w.getJSON(ctx, w.baseURL+"/w/api.php?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	results := make([]interface{}, 0, len(resp.Query.Search))
	for _, hit := range resp.Query.Search {
		results = append(results, map[string]interface{}{
			"title":   hit.Title,
			"snippet": w.markdown(hit.Snippet),
			"url":     w.articleURL(hit.Title),
		})
	}
	w.logger.Debug("wikipedia search", "query", query, "results", len(results))
	return map[string]interface{}{"query": query, "results": results}, nil
}

type summaryResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	ExtractHTML string `json:"extract_html"`
}

func (w *WikipediaTool) summary(ctx context.Context, title string) (map[string]interface{}, error) {
	endpoint := w.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))

	var resp summaryResponse
	if err := w.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	text := resp.Extract
	if resp.ExtractHTML != "" {
		text = w.markdown(resp.ExtractHTML)
	}
	return map[string]interface{}{
		"title":       resp.Title,
		"description": resp.Description,
		"summary":     text,
		"url":         w.articleURL(resp.Title),
	}, nil
}

func (w *WikipediaTool) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &errors.NotFoundError{Resource: "wikipedia article", ID: path(endpoint)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wikipedia returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding wikipedia response: %w", err)
	}
	return nil
}

// markdown converts the HTML fragments Wikipedia returns in snippets and
// extracts. On conversion failure the raw fragment is kept.
func (w *WikipediaTool) markdown(fragment string) string {
	if fragment == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		w.logger.Debug("html conversion failed", "error", err)
		return fragment
	}
	return strings.TrimSpace(md)
}

func (w *WikipediaTool) articleURL(title string) string {
	return w.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

func path(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Path
}

func searchLimit(v interface{}) int {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		n = int(x)
	case json.Number:
		i, _ := x.Int64()
		n = int(i)
	case string:
		n, _ = strconv.Atoi(x)
	}
	switch {
	case n <= 0:
		return defaultSearchLimit
	case n > maxSearchLimit:
		return maxSearchLimit
	}
	return n
}
