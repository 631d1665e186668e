package draft

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"example.com", "https://example.com", true},
		{"http://example.com/path?q=1", "http://example.com/path?q=1", true},
		{"https://sub.domain.co.uk", "https://sub.domain.co.uk", true},
		{"HTTPS://EXAMPLE.COM", "", false},
		{"https://EXAMPLE.COM", "https://EXAMPLE.COM", true},
		{"localhost:8080/admin", "https://localhost:8080/admin", true},
		{"http://192.168.0.1", "http://192.168.0.1", true},
		{"ftp://x.com", "", false},
		{"not a url", "", false},
		{"https://example", "", false},
		{"", "", false},
		{"  t.me/channel  ", "https://t.me/channel", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseButtonBatch(t *testing.T) {
	in := "A - https://x.com | B - https://y.com"
	first, err := ParseButtonBatch(in)
	require.NoError(t, err)
	second, err := ParseButtonBatch(in)
	require.NoError(t, err)

	want := []Button{{"A", "https://x.com"}, {"B", "https://y.com"}}
	assert.Equal(t, want, first)
	assert.Equal(t, first, second)

	reordered, err := ParseButtonBatch("B - https://y.com | A - https://x.com")
	require.NoError(t, err)
	assert.Equal(t, []Button{want[1], want[0]}, reordered)
}

func TestParseButtonBatchPrefixesScheme(t *testing.T) {
	got, err := ParseButtonBatch("Site - example.com")
	require.NoError(t, err)
	assert.Equal(t, []Button{{"Site", "https://example.com"}}, got)
}

func TestParseButtonBatchNamesBadPair(t *testing.T) {
	cases := []struct {
		in    string
		index int
		cause error
	}{
		{"A - https://x.com | B https://y.com", 1, ErrMalformedPair},
		{"A - ftp://x.com | B - y.com", 0, ErrInvalidURL},
		{"A - x.com | B - y.com | - z.com", 2, ErrMalformedPair},
		{"A - x.com | B - y.com | C - z", 2, ErrInvalidURL},
		{"A - x.com |", 1, ErrMalformedPair},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseButtonBatch(tc.in)
			assert.Nil(t, got)
			var be *BatchError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tc.index, be.Index)
			assert.ErrorIs(t, err, tc.cause)
		})
	}
}

func TestNewButton(t *testing.T) {
	_, err := NewButton("  ", "x.com")
	assert.ErrorIs(t, err, ErrEmptyLabel)

	b, err := NewButton(" Visit ", "x.com")
	require.NoError(t, err)
	assert.Equal(t, Button{"Visit", "https://x.com"}, b)
}

func TestReadiness(t *testing.T) {
	cases := []Content{
		{},
		{Text: "x"},
		{Media: []MediaItem{{Kind: Photo, Ref: "f"}}},
		{Buttons: []Button{{"a", "https://a.io"}}},
		{Text: "x", Media: []MediaItem{{Kind: Video, Ref: "v"}}},
	}
	for i, c := range cases {
		assert.Equal(t, len(c.Text) > 0 || len(c.Media) > 0, c.Ready(), "case %d", i)
	}
}

func TestMediaCapBoundary(t *testing.T) {
	var c Content
	lim := DefaultLimits()
	for i := 0; i < 10; i++ {
		require.NoError(t, c.AddMedia(MediaItem{Kind: Photo, Ref: fmt.Sprint(i)}, lim))
	}
	assert.ErrorIs(t, c.AddMedia(MediaItem{Kind: Photo, Ref: "11"}, lim), ErrMediaLimit)
	assert.Len(t, c.Media, 10)

	// configured caps above the album limit are still bounded
	var big Content
	for i := 0; i < 10; i++ {
		require.NoError(t, big.AddMedia(MediaItem{Kind: Photo}, Limits{MaxMedia: 50}))
	}
	assert.ErrorIs(t, big.AddMedia(MediaItem{Kind: Photo}, Limits{MaxMedia: 50}), ErrMediaLimit)
}

func TestAddButtonsAtomic(t *testing.T) {
	c := Content{Buttons: make([]Button, 9)}
	err := c.AddButtons(DefaultLimits(), Button{"a", "https://a.io"}, Button{"b", "https://b.io"})
	assert.ErrorIs(t, err, ErrButtonLimit)
	assert.Len(t, c.Buttons, 9)

	require.NoError(t, c.AddButtons(DefaultLimits(), Button{"a", "https://a.io"}))
	assert.True(t, c.ButtonsFull(DefaultLimits()))
}

func TestCloneDoesNotAlias(t *testing.T) {
	d := New()
	d.Media = []MediaItem{{Kind: Photo, Ref: "a"}}
	d.Selected = []int{1}
	c := d.Clone()
	c.Media[0].Ref = "b"
	c.Selected[0] = 2
	assert.Equal(t, "a", d.Media[0].Ref)
	assert.Equal(t, []int{1}, d.Selected)
}

func TestModeAndSelection(t *testing.T) {
	d := New()
	assert.False(t, d.IsEditing())
	assert.Equal(t, DefaultSettings(), d.Settings)

	e := NewEdit(Target{ChatRef: "@c", MessageID: 5})
	tgt, ok := e.EditTarget()
	require.True(t, ok)
	assert.Equal(t, 5, tgt.MessageID)
	assert.Equal(t, Editing, e.State)

	d.ToggleSelected(2)
	d.ToggleSelected(0)
	d.ToggleSelected(1)
	d.ToggleSelected(2)
	assert.Equal(t, []int{0, 1}, d.Selected)
}

func TestParseMessageLink(t *testing.T) {
	cases := []struct {
		in   string
		want Target
		ok   bool
	}{
		{"https://t.me/c/1234567/42", Target{"-1001234567", 42}, true},
		{"https://t.me/mychannel/7", Target{"@mychannel", 7}, true},
		{"t.me/channel_name/9", Target{"@channel_name", 9}, true},
		{"https://t.me/c/12/0", Target{}, false},
		{"https://t.me/mychannel", Target{}, false},
		{"https://example.com/a/1", Target{}, false},
		{"hello", Target{}, false},
	}
	for _, tc := range cases {
		got, err := ParseMessageLink(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrBadLink, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestFormatQuote(t *testing.T) {
	assert.Equal(t, "❝ Hello ❞\n\n— Alice", FormatQuote(" Hello ", "Alice"))
	assert.Equal(t, "❝ [Media message] ❞\n\n— Unknown", FormatQuote("", ""))
	assert.Equal(t, "a\n\nb", AppendText("a", "b"))
	assert.Equal(t, "b", AppendText("", "b"))
}

func TestStatesValid(t *testing.T) {
	assert.Len(t, States, 16)
	for _, s := range States {
		assert.True(t, s.Valid())
	}
	assert.False(t, State("bogus").Valid())
}
