package tools

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	bravesearch "github.com/cnosuke/go-brave-search"
)

const maxBody = 512 * 1024

var (
	scriptRe  = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	htmlTagRe = regexp.MustCompile(`<[^>]*>`)
)

var errSearchDisabled = errors.New("web search is not configured")

type webArgs struct {
	Action string `json:"action" jsonschema:"enum=search,enum=fetch,description=Operation: search the web or fetch a URL" validate:"required,oneof=search fetch"`
	Query  string `json:"query" jsonschema:"description=Search query (empty for fetch)"`
	URL    string `json:"url" jsonschema:"description=URL to fetch (empty for search)"`
	Count  int    `json:"count" jsonschema:"description=Number of search results (default 5; max 20)" validate:"gte=0"`
}

// Web brings outside text into a run: a Brave search, or the plain text of a
// fetched page so it can be summarized.
type Web struct {
	brave  *bravesearch.Client
	client *http.Client
}

// NewWeb returns a web tool. Search is only available when braveAPIKey is set.
func NewWeb(braveAPIKey string, client *http.Client) (*Web, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	w := &Web{client: client}
	if braveAPIKey != "" {
		b, err := bravesearch.NewClient(braveAPIKey)
		if err != nil {
			return nil, fmt.Errorf("creating brave client: %w", err)
		}
		w.brave = b
	}
	return w, nil
}

func (w *Web) Name() string { return "web" }
func (w *Web) Description() string {
	return "Search the web or fetch the text content of a URL"
}

func (w *Web) InputSchema() any { return schemaOf(&webArgs{}) }

func (w *Web) Execute(ctx context.Context, input string) (string, error) {
	var args webArgs
	if err := decode(w.Name(), input, &args); err != nil {
		return "", err
	}

	switch args.Action {
	case "search":
		return w.search(ctx, args.Query, args.Count)
	default:
		return w.fetch(ctx, args.URL)
	}
}

func (w *Web) search(ctx context.Context, query string, count int) (string, error) {
	if w.brave == nil {
		return "", errSearchDisabled
	}
	if query == "" {
		return "", fmt.Errorf("query is required for search action")
	}
	if count <= 0 {
		count = 5
	}
	if count > 20 {
		count = 20
	}

	slog.Debug("web: searching", "query", query, "count", count)

	resp, err := w.brave.WebSearch(ctx, query, &bravesearch.WebSearchParams{
		Count: count,
	})
	if err != nil {
		return "", fmt.Errorf("brave search: %w", err)
	}

	results := resp.GetWebResults()
	if len(results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "%s\n%s\n%s", r.Title, r.URL, r.Description)
	}
	return truncate([]byte(b.String())), nil
}

func (w *Web) fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("url is required for fetch action")
	}

	slog.Debug("web: fetching", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "summa/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	text := PlainText(string(body))
	slog.Debug("web: fetch done", "url", url, "bytes", len(text))
	return truncate([]byte(text)), nil
}

// PlainText strips markup from an HTML document and collapses whitespace.
func PlainText(doc string) string {
	doc = scriptRe.ReplaceAllString(doc, " ")
	doc = htmlTagRe.ReplaceAllString(doc, " ")
	return strings.Join(strings.Fields(html.UnescapeString(doc)), " ")
}
