// Package publish renders drafts into channel messages and edits.
package publish

import (
	"context"

	"github.com/m3rciful/postbot/internal/draft"
)

// ButtonsPerRow is the inline keyboard width.
const ButtonsPerRow = 2

// AlbumButtonsText labels the follow-up message that carries an album's
// buttons.
const AlbumButtonsText = "Action buttons for the post above"

// SendOptions are the per-call flags passed to the gateway.
type SendOptions struct {
	Silent        bool
	NoLinkPreview bool
	// Buttons become the inline keyboard; nil or empty removes it on edits.
	Buttons []draft.Button
}

// Gateway is the subset of the messaging API the engine needs. Chat refs
// are numeric chat ids or @usernames.
type Gateway interface {
	SendText(ctx context.Context, chatRef, text string, opts SendOptions) (draft.Target, error)
	SendMedia(ctx context.Context, chatRef string, item draft.MediaItem, caption string, opts SendOptions) (draft.Target, error)
	// SendAlbum sends 2 to 10 items as one media group. Only the first item
	// carries caption.
	SendAlbum(ctx context.Context, chatRef string, items []draft.MediaItem, caption string, opts SendOptions) ([]draft.Target, error)

	EditText(ctx context.Context, target draft.Target, text string, opts SendOptions) error
	EditMedia(ctx context.Context, target draft.Target, item draft.MediaItem, caption string, opts SendOptions) error
	EditCaption(ctx context.Context, target draft.Target, caption string, opts SendOptions) error

	Pin(ctx context.Context, target draft.Target, silent bool) error
	Unpin(ctx context.Context, target draft.Target) error
	Delete(ctx context.Context, target draft.Target) error

	Copy(ctx context.Context, src draft.Target, chatRef string) (draft.Target, error)
	Forward(ctx context.Context, src draft.Target, chatRef string) (draft.Target, error)
}
