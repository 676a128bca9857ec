package feed

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"infoplatform/app/database"
)

var _ Fetcher = (*RSSFetcher)(nil)

// RSSFetcher fetches RSS/Atom feeds over HTTP and normalizes their entries
// into candidate items.
type RSSFetcher struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	cleaner    *Cleaner
	extractor  *ContentExtractor
	userAgent  string
	timeout    time.Duration
}

func NewRSSFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *RSSFetcher {
	return &RSSFetcher{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		cleaner:    NewCleaner(),
		extractor:  NewContentExtractor(),
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (f *RSSFetcher) Fetch(ctx context.Context, source *database.Source) ([]CandidateItem, error) {
	data, err := f.fetchURL(ctx, source.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	parsed, err := f.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	extractContent := source.Config["extract_content"] == "true"

	candidates := make([]CandidateItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		candidates = append(candidates, f.normalizeEntry(ctx, source, entry, extractContent))
	}

	return candidates, nil
}

func (f *RSSFetcher) normalizeEntry(ctx context.Context, source *database.Source, entry *gofeed.Item, extractContent bool) CandidateItem {
	raw := cmp.Or(entry.Content, entry.Description)

	candidate := CandidateItem{
		URL:        entry.Link,
		Title:      entry.Title,
		Content:    f.cleaner.Run(raw),
		RawContent: raw,
		Authors:    extractAuthors(entry),
		SourceName: source.Name,
	}

	if entry.PublishedParsed != nil {
		candidate.PublishedAt = entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		candidate.PublishedAt = entry.UpdatedParsed
	}

	meta := map[string]any{}
	if entry.GUID != "" {
		meta["guid"] = entry.GUID
	}
	if len(entry.Categories) > 0 {
		meta["categories"] = entry.Categories
	}
	if len(meta) > 0 {
		candidate.Meta = meta
	}

	if extractContent && entry.Link != "" {
		if content, err := f.extractArticle(ctx, entry.Link); err != nil {
			slog.Warn("Article content extraction failed, using feed content", "url", entry.Link, "error", err)
		} else {
			candidate.Content = content
		}
	}

	return candidate
}

// extractArticle fetches the linked page and extracts its readable text.
func (f *RSSFetcher) extractArticle(ctx context.Context, url string) (string, error) {
	data, err := f.fetchURL(ctx, url)
	if err != nil {
		return "", err
	}
	return f.extractor.Run(data)
}

func (f *RSSFetcher) fetchURL(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func extractAuthors(entry *gofeed.Item) []string {
	var authors []string

	if len(entry.Authors) > 0 {
		for _, author := range entry.Authors {
			if author != nil {
				if s := formatAuthor(author.Name, author.Email); s != "" {
					authors = append(authors, s)
				}
			}
		}
	} else if entry.Author != nil {
		if s := formatAuthor(entry.Author.Name, entry.Author.Email); s != "" {
			authors = append(authors, s)
		}
	}

	return authors
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s (%s)", email, name)
	case name != "":
		return name
	default:
		return email
	}
}
