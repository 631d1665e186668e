// Package draft models the post a user is composing or editing.
//
// A Draft is a value: every mutation goes through the composer, which
// clones the draft first, so a stored draft is never modified in place.
package draft

import (
	"errors"
	"slices"
)

// Limits caps per-post resources.
type Limits struct {
	MaxButtons int
	MaxMedia   int
}

// MaxAlbumItems is the hard gateway cap on a media group.
const MaxAlbumItems = 10

// DefaultLimits mirrors the stock configuration.
func DefaultLimits() Limits {
	return Limits{MaxButtons: 10, MaxMedia: MaxAlbumItems}
}

var (
	// ErrEmptyText is returned when a text input is blank.
	ErrEmptyText = errors.New("text is empty")
	// ErrButtonLimit is returned when a button would exceed Limits.MaxButtons.
	ErrButtonLimit = errors.New("button limit reached")
	// ErrMediaLimit is returned when media would exceed Limits.MaxMedia.
	ErrMediaLimit = errors.New("media limit reached")
)

// MediaKind enumerates the media types a post can carry.
type MediaKind string

const (
	Photo     MediaKind = "photo"
	Video     MediaKind = "video"
	Document  MediaKind = "document"
	Animation MediaKind = "animation"
)

// MediaItem references media previously uploaded to Telegram.
type MediaItem struct {
	Kind MediaKind `json:"kind"`
	// Ref is the gateway file id.
	Ref     string `json:"ref"`
	Caption string `json:"caption,omitempty"`
}

// Button is an inline URL button.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Settings are per-post publish flags.
type Settings struct {
	Pin         bool `json:"pin"`
	Notify      bool `json:"notify"`
	LinkPreview bool `json:"link_preview"`
}

// DefaultSettings returns pin off, notifications on, link preview on.
func DefaultSettings() Settings {
	return Settings{Pin: false, Notify: true, LinkPreview: true}
}

// Content is what gets rendered into a channel message.
type Content struct {
	Text     string      `json:"text"`
	Media    []MediaItem `json:"media,omitempty"`
	Buttons  []Button    `json:"buttons,omitempty"`
	Settings Settings    `json:"settings"`
}

// NewContent returns empty content with default settings.
func NewContent() Content {
	return Content{Settings: DefaultSettings()}
}

// Ready reports whether the content can be published or saved.
func (c Content) Ready() bool {
	return len(c.Text) > 0 || len(c.Media) > 0
}

// Clone returns a deep copy.
func (c Content) Clone() Content {
	out := c
	out.Media = slices.Clone(c.Media)
	out.Buttons = slices.Clone(c.Buttons)
	return out
}

// AddMedia appends item unless the media cap is reached.
func (c *Content) AddMedia(item MediaItem, lim Limits) error {
	if len(c.Media) >= mediaCap(lim) {
		return ErrMediaLimit
	}
	c.Media = append(c.Media, item)
	return nil
}

// AddButtons appends all buttons or none of them.
func (c *Content) AddButtons(lim Limits, buttons ...Button) error {
	if lim.MaxButtons > 0 && len(c.Buttons)+len(buttons) > lim.MaxButtons {
		return ErrButtonLimit
	}
	c.Buttons = append(c.Buttons, buttons...)
	return nil
}

// ButtonsFull reports whether no further button fits.
func (c Content) ButtonsFull(lim Limits) bool {
	return lim.MaxButtons > 0 && len(c.Buttons) >= lim.MaxButtons
}

func mediaCap(lim Limits) int {
	if lim.MaxMedia <= 0 || lim.MaxMedia > MaxAlbumItems {
		return MaxAlbumItems
	}
	return lim.MaxMedia
}

// Target identifies a published message.
type Target struct {
	ChatRef   string `json:"chat_ref"`
	MessageID int    `json:"message_id"`
}

// Mode distinguishes a fresh post from an edit of a published one.
type Mode interface {
	isMode()
}

// Fresh marks a draft that will be published as a new message.
type Fresh struct{}

// EditingExisting marks a draft that will overwrite Target.
type EditingExisting struct {
	Target Target
}

func (Fresh) isMode()           {}
func (EditingExisting) isMode() {}

// Purpose tells SelectingChannel what the chosen channel is for.
type Purpose int

const (
	PurposePublish Purpose = iota
	PurposeEdit
)

// Confirm tracks an outstanding yes/no question.
type Confirm int

const (
	ConfirmNone Confirm = iota
	ConfirmClear
	ConfirmDelete
)

// Pending carries values that only live for the duration of a sub-flow.
type Pending struct {
	ButtonLabel string
	Purpose     Purpose
	// Channel is the registry index picked for an edit, -1 when unset.
	Channel int
	Confirm Confirm
}

// Draft is the per-user session value.
type Draft struct {
	Content
	Mode  Mode
	State State
	// Selected holds registry indices in ascending order.
	Selected []int
	Pending  Pending
}

// New returns an idle fresh draft.
func New() Draft {
	return Draft{
		Content: NewContent(),
		Mode:    Fresh{},
		State:   Idle,
		Pending: Pending{Channel: -1},
	}
}

// NewEdit returns a draft editing target, starting in Editing.
func NewEdit(target Target) Draft {
	d := New()
	d.Mode = EditingExisting{Target: target}
	d.State = Editing
	return d
}

// Clone returns a deep copy of d.
func (d Draft) Clone() Draft {
	out := d
	out.Content = d.Content.Clone()
	out.Selected = slices.Clone(d.Selected)
	return out
}

// EditTarget returns the message being edited, if any.
func (d Draft) EditTarget() (Target, bool) {
	if m, ok := d.Mode.(EditingExisting); ok {
		return m.Target, true
	}
	return Target{}, false
}

// IsEditing reports whether d edits a published message.
func (d Draft) IsEditing() bool {
	_, ok := d.EditTarget()
	return ok
}

// ToggleSelected adds or removes idx from the selection keeping it sorted.
func (d *Draft) ToggleSelected(idx int) {
	if i, found := slices.BinarySearch(d.Selected, idx); found {
		d.Selected = slices.Delete(d.Selected, i, i+1)
	} else {
		d.Selected = slices.Insert(d.Selected, i, idx)
	}
}
