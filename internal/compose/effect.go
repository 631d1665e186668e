package compose

import "github.com/m3rciful/postbot/internal/draft"

// Screen names a prompt or menu the bot should show.
type Screen int

const (
	ScreenStart Screen = iota
	ScreenPostMenu
	ScreenPromptText
	ScreenPromptMedia
	ScreenButtonMenu
	ScreenPromptButtonLabel
	ScreenPromptButtonURL
	ScreenPromptBulk
	ScreenConfirmClear
	ScreenChannelPicker
	ScreenMultiPicker
	ScreenEditChannelPicker
	ScreenPromptLink
	ScreenEditMenu
	ScreenConfirmDelete
	ScreenPromptQuote
	ScreenPromptClone
	ScreenPromptForward
)

// NoticeKind names a short confirmation message.
type NoticeKind int

const (
	NoticeTextSet NoticeKind = iota
	NoticeMediaAdded
	NoticeMediaCleared
	NoticeButtonAdded
	NoticeButtonsAdded
	NoticeButtonsCleared
	NoticeSettings
	NoticeCleared
	NoticeKept
	NoticeQuoteAdded
	NoticeLoadFailed
	NoticeEditCancelled
)

// TargetOp is an action on the message being edited.
type TargetOp int

const (
	OpPin TargetOp = iota
	OpUnpin
	OpDelete
)

// Effect is an instruction for the caller produced by Transition.
type Effect interface {
	isEffect()
}

// Show renders a screen.
type Show struct{ Screen Screen }

// Notice confirms a change. Count and Max qualify counters such as media.
type Notice struct {
	Kind  NoticeKind
	Count int
	Max   int
}

// Reject reports a user input error; the draft is unchanged.
type Reject struct{ Err error }

// Preview renders the draft back to the user.
type Preview struct{}

// Publish sends the draft to the channels at the given registry indices.
type Publish struct{ Channels []int }

// Load fetches the current content of Target into the draft.
type Load struct {
	Channel int
	Target  draft.Target
}

// SaveEdit applies the draft to its edit target.
type SaveEdit struct{}

// ApplyTarget runs Op against the edit target.
type ApplyTarget struct{ Op TargetOp }

// Clone copies or forwards Source to the channel at Channel.
type Clone struct {
	Source  draft.Target
	Forward bool
	Channel int
}

// Discard removes the session.
type Discard struct{}

// Unhandled means the input has no meaning in the current state.
type Unhandled struct{}

func (Show) isEffect()        {}
func (Notice) isEffect()      {}
func (Reject) isEffect()      {}
func (Preview) isEffect()     {}
func (Publish) isEffect()     {}
func (Load) isEffect()        {}
func (SaveEdit) isEffect()    {}
func (ApplyTarget) isEffect() {}
func (Clone) isEffect()       {}
func (Discard) isEffect()     {}
func (Unhandled) isEffect()   {}
