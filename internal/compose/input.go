package compose

import (
	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/model"
)

// Action is a menu tap or command that drives the composer.
type Action string

const (
	ActCreatePost Action = "create_post"
	ActEditPost   Action = "edit_post"
	ActBack       Action = "back"
	ActCancel     Action = "cancel"

	ActAddText        Action = "add_text"
	ActAddMedia       Action = "add_media"
	ActDoneMedia      Action = "done_media"
	ActClearMedia     Action = "clear_media"
	ActAddButtons     Action = "add_buttons"
	ActAddNewButton   Action = "add_new_button"
	ActBulkButtons    Action = "bulk_buttons"
	ActClearButtons   Action = "clear_buttons"
	ActTogglePin      Action = "toggle_pin"
	ActToggleNotify   Action = "toggle_notify"
	ActTogglePreview  Action = "toggle_preview"
	ActPreview        Action = "preview"
	ActPublish        Action = "publish"
	ActClearAll       Action = "clear_all"
	ActConfirmClear   Action = "confirm_clear"
	ActKeepContent    Action = "keep_content"
	ActQuote          Action = "quote"
	ActCloneNormal    Action = "clone"
	ActCloneForward   Action = "forward"
	ActSelectMultiple Action = "select_multiple"
	ActSelectAll      Action = "select_all"
	ActConfirmSelect  Action = "confirm_select"

	ActEditText      Action = "edit_text"
	ActEditMedia     Action = "edit_media"
	ActEditButtons   Action = "edit_buttons"
	ActSave          Action = "save"
	ActPinTarget     Action = "pin_target"
	ActUnpinTarget   Action = "unpin_target"
	ActDeleteTarget  Action = "delete_target"
	ActConfirmDelete Action = "confirm_delete"
)

// Input is one user event fed to Transition.
type Input interface {
	isInput()
}

// Meta describes where a message came from.
type Meta struct {
	// Author is the forward origin name, else the sender name.
	Author string
	// Origin is set for messages forwarded from a channel.
	Origin *draft.Target
	// Source is the message in the user's private chat.
	Source draft.Target
}

// Tap is a button press or a command.
type Tap struct{ Action Action }

// Text is a free-text message that is not a menu label.
type Text struct {
	Value string
	Meta
}

// Media is a photo, video, document or animation message.
type Media struct {
	Item draft.MediaItem
	Meta
}

// Pick selects a single channel by registry index.
type Pick struct{ Index int }

// Toggle flips a channel in the multi-selection.
type Toggle struct{ Index int }

// Loaded delivers the current content of an edit target. Err is set when
// the content could not be fetched; the edit continues with empty content.
type Loaded struct {
	Content draft.Content
	Err     error
}

func (Tap) isInput()    {}
func (Text) isInput()   {}
func (Media) isInput()  {}
func (Pick) isInput()   {}
func (Toggle) isInput() {}
func (Loaded) isInput() {}

// Env is the read-only context Transition needs besides the draft.
type Env struct {
	Limits   draft.Limits
	Channels []model.Channel
}
