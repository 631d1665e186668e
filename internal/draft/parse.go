package draft

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidURL is returned for strings that are not http(s) URLs.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrMalformedPair is returned for a bulk pair without " - ".
	ErrMalformedPair = errors.New("expected 'Label - URL'")
	// ErrEmptyLabel is returned when a button label is blank.
	ErrEmptyLabel = errors.New("button label is empty")
	// ErrBadLink is returned for strings that are not t.me message links.
	ErrBadLink = errors.New("not a message link")
)

var urlRe = regexp.MustCompile(`(?i)^https?://` +
	`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?` +
	`|localhost` +
	`|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

// NormalizeURL prefixes https:// when no http(s) scheme is present and
// validates the result.
func NormalizeURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", ErrInvalidURL
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	if !urlRe.MatchString(u) {
		return "", ErrInvalidURL
	}
	return u, nil
}

// NewButton validates label and url.
func NewButton(label, rawURL string) (Button, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Button{}, ErrEmptyLabel
	}
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return Button{}, err
	}
	return Button{Label: label, URL: u}, nil
}

// BatchError names the first bad pair of a bulk button definition.
type BatchError struct {
	Index int
	Pair  string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("pair %d %q: %v", e.Index+1, e.Pair, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ParseButtonBatch parses "Label - URL | Label2 - URL2". Pairs are split on
// "|" and then on the first " - ". Any malformed pair fails the whole batch.
func ParseButtonBatch(input string) ([]Button, error) {
	pairs := strings.Split(input, "|")
	out := make([]Button, 0, len(pairs))
	for i, raw := range pairs {
		pair := strings.TrimSpace(raw)
		label, rawURL, ok := strings.Cut(pair, " - ")
		if !ok {
			return nil, &BatchError{Index: i, Pair: pair, Err: ErrMalformedPair}
		}
		b, err := NewButton(label, rawURL)
		if err != nil {
			return nil, &BatchError{Index: i, Pair: pair, Err: err}
		}
		out = append(out, b)
	}
	return out, nil
}

var (
	privateLinkRe = regexp.MustCompile(`^(?:https?://)?(?:t|telegram)\.me/c/(\d+)/(\d+)/?$`)
	publicLinkRe  = regexp.MustCompile(`^(?:https?://)?(?:t|telegram)\.me/([A-Za-z][A-Za-z0-9_]{3,})/(\d+)/?$`)
)

// ParseMessageLink turns a t.me message link into a Target. Private links
// (t.me/c/<id>/<msg>) map to chat ref -100<id>; public ones to @username.
func ParseMessageLink(link string) (Target, error) {
	link = strings.TrimSpace(link)
	if m := privateLinkRe.FindStringSubmatch(link); m != nil {
		id, err := strconv.Atoi(m[2])
		if err != nil || id <= 0 {
			return Target{}, ErrBadLink
		}
		return Target{ChatRef: "-100" + m[1], MessageID: id}, nil
	}
	if m := publicLinkRe.FindStringSubmatch(link); m != nil {
		id, err := strconv.Atoi(m[2])
		if err != nil || id <= 0 {
			return Target{}, ErrBadLink
		}
		return Target{ChatRef: "@" + m[1], MessageID: id}, nil
	}
	return Target{}, ErrBadLink
}

// FormatQuote renders a quote block attributed to author.
func FormatQuote(text, author string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "[Media message]"
	}
	author = strings.TrimSpace(author)
	if author == "" {
		author = "Unknown"
	}
	return "❝ " + text + " ❞\n\n— " + author
}

// AppendText joins extra onto text separated by a blank line.
func AppendText(text, extra string) string {
	if text == "" {
		return extra
	}
	return text + "\n\n" + extra
}
