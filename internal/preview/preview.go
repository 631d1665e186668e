// Package preview fetches the title and description of the first link in a
// post for the preview screen.
package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/m3rciful/postbot/core/logger"
)

const (
	TitleMax       = 100
	DescriptionMax = 200

	FallbackTitle       = "Link Preview"
	FallbackDescription = "Unable to fetch preview"
	NoTitle             = "No title"
	NoDescription       = "No description"

	maxBody = 1 << 20
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// Link is what the preview screen shows for a URL.
type Link struct {
	URL         string
	Title       string
	Description string
}

// FirstURL returns the first http(s) link in text.
func FirstURL(text string) (string, bool) {
	u := urlRe.FindString(text)
	u = strings.TrimRight(u, ".,;:!?)")
	return u, u != ""
}

// Fetcher downloads pages with a bounded timeout.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a fetcher; a nil client gets one with timeout.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{client: client}
}

// Fetch never fails: any error yields the fallback title and description.
func (f *Fetcher) Fetch(ctx context.Context, url string) Link {
	start := time.Now()
	link, err := f.fetch(ctx, url)
	if err != nil {
		logger.Debug(ctx, logger.CompPreview, "preview.fetch",
			slog.String("status", "fail"),
			slog.String("url", logger.SanitizeLimit(url, 128)),
			slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
			logger.Err(err),
		)
		return Link{URL: url, Title: FallbackTitle, Description: FallbackDescription}
	}
	return link
}

func (f *Fetcher) fetch(ctx context.Context, url string) (Link, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Link{}, err
	}
	req.Header.Set("User-Agent", "postbot-preview/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return Link{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Link{}, fmt.Errorf("preview: status %s", resp.Status)
	}
	title, desc, err := Parse(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Link{}, err
	}
	if title == "" {
		title = NoTitle
	}
	if desc == "" {
		desc = NoDescription
	}
	return Link{URL: url, Title: truncate(title, TitleMax), Description: truncate(desc, DescriptionMax)}, nil
}

// Parse reads the <title> and the description meta tag, preferring
// name=description over og:description.
func Parse(r io.Reader) (title, description string, err error) {
	z := html.NewTokenizer(r)
	var og string
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				if description == "" {
					description = og
				}
				return strings.TrimSpace(title), strings.TrimSpace(description), nil
			}
			return "", "", z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = title == ""
			case atom.Meta:
				name, content := metaPair(tok)
				switch name {
				case "description":
					if description == "" {
						description = content
					}
				case "og:description":
					if og == "" {
						og = content
					}
				}
			case atom.Body:
				if description == "" {
					description = og
				}
				if title != "" && description != "" {
					return strings.TrimSpace(title), strings.TrimSpace(description), nil
				}
			}
		case html.TextToken:
			if inTitle {
				title += string(z.Text())
			}
		case html.EndTagToken:
			if tn, _ := z.TagName(); string(tn) == "title" {
				inTitle = false
			}
		}
	}
}

func metaPair(tok html.Token) (name, content string) {
	for _, a := range tok.Attr {
		switch strings.ToLower(a.Key) {
		case "name", "property":
			name = strings.ToLower(strings.TrimSpace(a.Val))
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	return name, content
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
