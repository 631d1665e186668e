// Package compose implements the post composition state machine.
//
// Transition is pure: it never performs I/O and never mutates the draft it
// is given. Side effects are returned as Effect values for the caller to
// execute.
package compose

import (
	"errors"
	"strings"

	"github.com/m3rciful/postbot/internal/draft"
)

var (
	// ErrNotReady is returned when publishing or saving a draft without text or media.
	ErrNotReady = errors.New("post has no text or media")
	// ErrNoChannels is returned when the user has no connected channel.
	ErrNoChannels = errors.New("no connected channels")
	// ErrNothingSelected is returned when confirming an empty multi-selection.
	ErrNothingSelected = errors.New("no channels selected")
	// ErrBadChannel is returned for an out of range channel index.
	ErrBadChannel = errors.New("unknown channel")
	// ErrWrongChannel is returned when an edit target is not in the chosen channel.
	ErrWrongChannel = errors.New("message is not from the selected channel")
	// ErrPickChannel is returned when a link arrives before a channel is chosen.
	ErrPickChannel = errors.New("choose a channel first")
	// ErrExpectedMedia is returned for text sent while media is awaited.
	ErrExpectedMedia = errors.New("send a photo, video, document or animation")
	// ErrExpectedText is returned for media sent while text is awaited.
	ErrExpectedText = errors.New("send text")
	// ErrSessionExpired is returned when an input needs a draft that no longer exists.
	ErrSessionExpired = errors.New("session expired")
)

// Transition advances d by one input.
func Transition(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	if !d.State.Valid() {
		return draft.New(), effects(Reject{Err: ErrSessionExpired}, Show{Screen: ScreenStart})
	}
	next := d.Clone()

	if tap, ok := in.(Tap); ok {
		switch tap.Action {
		case ActCreatePost:
			return createPost()
		case ActEditPost:
			return startEdit(d, env)
		case ActCancel:
			if next.State == draft.Editing || (next.State == draft.SelectingChannel && next.Pending.Purpose == draft.PurposeEdit) {
				return draft.New(), effects(Discard{}, Notice{Kind: NoticeEditCancelled}, Show{Screen: ScreenStart})
			}
		}
	}

	switch next.State {
	case draft.Idle:
		return idle(next, in, env)
	case draft.MainMenu:
		return mainMenu(next, in, env)
	case draft.AddingText, draft.EditingText:
		return addingText(next, in)
	case draft.AddingMedia, draft.EditingMedia:
		return addingMedia(next, in, env)
	case draft.AddingButtonText:
		return addingButtonLabel(next, in)
	case draft.AddingButtonURL:
		return addingButtonURL(next, in, env)
	case draft.AddingMultipleButtons:
		return addingBulkButtons(next, in, env)
	case draft.SelectingChannel:
		if next.Pending.Purpose == draft.PurposeEdit {
			return selectingEditChannel(next, in, env)
		}
		return selectingChannel(next, in, env)
	case draft.MultiSelectingChannels:
		return multiSelecting(next, in, env)
	case draft.Editing:
		return editing(next, in, env)
	case draft.EditingButtons:
		return editingButtons(next, in, env)
	case draft.Quoting:
		return quoting(next, in)
	case draft.NormalCloning:
		return cloning(next, in, false)
	case draft.ForwardCloning:
		return cloning(next, in, true)
	}
	return draft.New(), effects(Reject{Err: ErrSessionExpired}, Show{Screen: ScreenStart})
}

func effects(e ...Effect) []Effect { return e }

func reject(d draft.Draft, err error) (draft.Draft, []Effect) {
	return d, effects(Reject{Err: err})
}

func unhandled(d draft.Draft) (draft.Draft, []Effect) {
	return d, effects(Unhandled{})
}

// home is the state sub-flows return to.
func home(d draft.Draft) draft.State {
	if d.IsEditing() {
		return draft.Editing
	}
	return draft.MainMenu
}

func menuScreen(s draft.State) Screen {
	if s == draft.Editing {
		return ScreenEditMenu
	}
	return ScreenPostMenu
}

// back drops pending sub-flow values and returns to the draft's menu.
func back(d draft.Draft) (draft.Draft, []Effect) {
	d.Pending.ButtonLabel = ""
	d.Pending.Confirm = draft.ConfirmNone
	d.Selected = nil
	d.State = home(d)
	return d, effects(Show{Screen: menuScreen(d.State)})
}

func isBack(in Input) bool {
	tap, ok := in.(Tap)
	return ok && (tap.Action == ActBack || tap.Action == ActCancel)
}

// createPost always starts from an empty draft with default settings.
func createPost() (draft.Draft, []Effect) {
	d := draft.New()
	d.State = draft.MainMenu
	return d, effects(Show{Screen: ScreenPostMenu})
}

func startEdit(d draft.Draft, env Env) (draft.Draft, []Effect) {
	if len(env.Channels) == 0 {
		return reject(d, ErrNoChannels)
	}
	n := draft.New()
	n.State = draft.SelectingChannel
	n.Pending.Purpose = draft.PurposeEdit
	if len(env.Channels) == 1 {
		n.Pending.Channel = 0
		return n, effects(Show{Screen: ScreenPromptLink})
	}
	return n, effects(Show{Screen: ScreenEditChannelPicker})
}

func startClone(d draft.Draft, env Env, forward bool) (draft.Draft, []Effect) {
	if len(env.Channels) == 0 {
		return reject(d, ErrNoChannels)
	}
	if forward {
		d.State = draft.ForwardCloning
		return d, effects(Show{Screen: ScreenPromptForward})
	}
	d.State = draft.NormalCloning
	return d, effects(Show{Screen: ScreenPromptClone})
}

func idle(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	switch in := in.(type) {
	case Tap:
		switch in.Action {
		case ActQuote:
			d.State = draft.Quoting
			return d, effects(Show{Screen: ScreenPromptQuote})
		case ActCloneNormal:
			return startClone(d, env, false)
		case ActCloneForward:
			return startClone(d, env, true)
		case ActBack, ActCancel:
			return d, effects(Show{Screen: ScreenStart})
		}
		return reject(d, ErrSessionExpired)
	case Pick, Toggle:
		return reject(d, ErrSessionExpired)
	case Text, Media, Loaded:
		return unhandled(d)
	}
	return unhandled(d)
}

func mainMenu(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	tap, ok := in.(Tap)
	if !ok {
		return unhandled(d)
	}
	if out, effs, handled := buttonMenuTap(d, tap.Action, env); handled {
		return out, effs
	}
	switch tap.Action {
	case ActAddText:
		d.State = draft.AddingText
		return d, effects(Show{Screen: ScreenPromptText})
	case ActAddMedia:
		d.State = draft.AddingMedia
		return d, effects(Show{Screen: ScreenPromptMedia})
	case ActAddButtons:
		return d, effects(Show{Screen: ScreenButtonMenu})
	case ActTogglePin:
		d.Settings.Pin = !d.Settings.Pin
		return d, effects(Notice{Kind: NoticeSettings}, Show{Screen: ScreenPostMenu})
	case ActToggleNotify:
		d.Settings.Notify = !d.Settings.Notify
		return d, effects(Notice{Kind: NoticeSettings}, Show{Screen: ScreenPostMenu})
	case ActTogglePreview:
		d.Settings.LinkPreview = !d.Settings.LinkPreview
		return d, effects(Notice{Kind: NoticeSettings}, Show{Screen: ScreenPostMenu})
	case ActPreview:
		if !d.Ready() {
			return reject(d, ErrNotReady)
		}
		return d, effects(Preview{})
	case ActPublish:
		return beginPublish(d, env)
	case ActClearAll:
		d.Pending.Confirm = draft.ConfirmClear
		return d, effects(Show{Screen: ScreenConfirmClear})
	case ActConfirmClear:
		if d.Pending.Confirm != draft.ConfirmClear {
			return unhandled(d)
		}
		d.Content = draft.NewContent()
		d.Pending.Confirm = draft.ConfirmNone
		return d, effects(Notice{Kind: NoticeCleared}, Show{Screen: ScreenPostMenu})
	case ActKeepContent:
		d.Pending.Confirm = draft.ConfirmNone
		return d, effects(Notice{Kind: NoticeKept}, Show{Screen: ScreenPostMenu})
	case ActQuote:
		d.State = draft.Quoting
		return d, effects(Show{Screen: ScreenPromptQuote})
	case ActCloneNormal:
		return startClone(d, env, false)
	case ActCloneForward:
		return startClone(d, env, true)
	case ActBack, ActCancel:
		d.Pending.Confirm = draft.ConfirmNone
		d.State = draft.Idle
		return d, effects(Show{Screen: ScreenStart})
	}
	return unhandled(d)
}

// buttonMenuTap handles the button sub-menu shared by composing and editing.
func buttonMenuTap(d draft.Draft, act Action, env Env) (draft.Draft, []Effect, bool) {
	switch act {
	case ActAddNewButton:
		if d.ButtonsFull(env.Limits) {
			out, effs := reject(d, draft.ErrButtonLimit)
			return out, effs, true
		}
		d.State = draft.AddingButtonText
		return d, effects(Show{Screen: ScreenPromptButtonLabel}), true
	case ActBulkButtons:
		if d.ButtonsFull(env.Limits) {
			out, effs := reject(d, draft.ErrButtonLimit)
			return out, effs, true
		}
		d.State = draft.AddingMultipleButtons
		return d, effects(Show{Screen: ScreenPromptBulk}), true
	case ActClearButtons:
		d.Buttons = nil
		return d, effects(Notice{Kind: NoticeButtonsCleared}, Show{Screen: ScreenButtonMenu}), true
	}
	return d, nil, false
}

func beginPublish(d draft.Draft, env Env) (draft.Draft, []Effect) {
	if !d.Ready() {
		return reject(d, ErrNotReady)
	}
	switch len(env.Channels) {
	case 0:
		return reject(d, ErrNoChannels)
	case 1:
		d.State = draft.MainMenu
		return d, effects(Publish{Channels: []int{0}})
	}
	d.State = draft.SelectingChannel
	d.Pending.Purpose = draft.PurposePublish
	d.Selected = nil
	return d, effects(Show{Screen: ScreenChannelPicker})
}

func addingText(d draft.Draft, in Input) (draft.Draft, []Effect) {
	if isBack(in) {
		return back(d)
	}
	switch in := in.(type) {
	case Text:
		text := strings.TrimSpace(in.Value)
		if text == "" {
			return reject(d, draft.ErrEmptyText)
		}
		d.Text = text
		d.State = home(d)
		return d, effects(Notice{Kind: NoticeTextSet}, Show{Screen: menuScreen(d.State)})
	case Media:
		return reject(d, ErrExpectedText)
	}
	return unhandled(d)
}

func addingMedia(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	if isBack(in) {
		return back(d)
	}
	switch in := in.(type) {
	case Media:
		if err := d.AddMedia(in.Item, env.Limits); err != nil {
			return reject(d, err)
		}
		return d, effects(Notice{Kind: NoticeMediaAdded, Count: len(d.Media), Max: mediaMax(env.Limits)})
	case Text:
		return reject(d, ErrExpectedMedia)
	case Tap:
		switch in.Action {
		case ActDoneMedia:
			d.State = home(d)
			return d, effects(Show{Screen: menuScreen(d.State)})
		case ActClearMedia:
			d.Media = nil
			return d, effects(Notice{Kind: NoticeMediaCleared}, Show{Screen: ScreenPromptMedia})
		}
	}
	return unhandled(d)
}

func mediaMax(lim draft.Limits) int {
	if lim.MaxMedia <= 0 || lim.MaxMedia > draft.MaxAlbumItems {
		return draft.MaxAlbumItems
	}
	return lim.MaxMedia
}

func addingButtonLabel(d draft.Draft, in Input) (draft.Draft, []Effect) {
	if isBack(in) {
		return back(d)
	}
	switch in := in.(type) {
	case Text:
		label := strings.TrimSpace(in.Value)
		if label == "" {
			return reject(d, draft.ErrEmptyLabel)
		}
		d.Pending.ButtonLabel = label
		d.State = draft.AddingButtonURL
		return d, effects(Show{Screen: ScreenPromptButtonURL})
	case Media:
		return reject(d, ErrExpectedText)
	}
	return unhandled(d)
}

func addingButtonURL(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	if isBack(in) {
		return back(d)
	}
	switch in := in.(type) {
	case Text:
		b, err := draft.NewButton(d.Pending.ButtonLabel, in.Value)
		if err != nil {
			return reject(d, err)
		}
		if err := d.AddButtons(env.Limits, b); err != nil {
			return reject(d, err)
		}
		d.Pending.ButtonLabel = ""
		d.State = home(d)
		return d, effects(
			Notice{Kind: NoticeButtonAdded, Count: len(d.Buttons), Max: env.Limits.MaxButtons},
			Show{Screen: menuScreen(d.State)},
		)
	case Media:
		return reject(d, ErrExpectedText)
	}
	return unhandled(d)
}

func addingBulkButtons(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	if isBack(in) {
		return back(d)
	}
	switch in := in.(type) {
	case Text:
		batch, err := draft.ParseButtonBatch(in.Value)
		if err != nil {
			return reject(d, err)
		}
		if err := d.AddButtons(env.Limits, batch...); err != nil {
			return reject(d, err)
		}
		d.State = home(d)
		return d, effects(
			Notice{Kind: NoticeButtonsAdded, Count: len(batch), Max: env.Limits.MaxButtons},
			Show{Screen: menuScreen(d.State)},
		)
	case Media:
		return reject(d, ErrExpectedText)
	}
	return unhandled(d)
}

func allChannels(env Env) []int {
	out := make([]int, len(env.Channels))
	for i := range out {
		out[i] = i
	}
	return out
}

func validIndex(env Env, i int) bool {
	return i >= 0 && i < len(env.Channels)
}

func selectingChannel(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	switch in := in.(type) {
	case Pick:
		if !validIndex(env, in.Index) {
			return reject(d, ErrBadChannel)
		}
		d.State = draft.MainMenu
		return d, effects(Publish{Channels: []int{in.Index}})
	case Tap:
		switch in.Action {
		case ActSelectMultiple:
			d.State = draft.MultiSelectingChannels
			d.Selected = nil
			return d, effects(Show{Screen: ScreenMultiPicker})
		case ActSelectAll:
			d.State = draft.MainMenu
			return d, effects(Publish{Channels: allChannels(env)})
		case ActBack, ActCancel:
			return back(d)
		}
	}
	return unhandled(d)
}

func multiSelecting(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	switch in := in.(type) {
	case Toggle:
		if !validIndex(env, in.Index) {
			return reject(d, ErrBadChannel)
		}
		d.ToggleSelected(in.Index)
		return d, effects(Show{Screen: ScreenMultiPicker})
	case Tap:
		switch in.Action {
		case ActConfirmSelect:
			if len(d.Selected) == 0 {
				return reject(d, ErrNothingSelected)
			}
			chosen := d.Selected
			d.Selected = nil
			d.State = draft.MainMenu
			return d, effects(Publish{Channels: chosen})
		case ActSelectAll:
			d.Selected = nil
			d.State = draft.MainMenu
			return d, effects(Publish{Channels: allChannels(env)})
		case ActBack:
			d.Selected = nil
			d.State = draft.SelectingChannel
			return d, effects(Show{Screen: ScreenChannelPicker})
		case ActCancel:
			return back(d)
		}
	}
	return unhandled(d)
}

func selectingEditChannel(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	switch in := in.(type) {
	case Pick:
		if !validIndex(env, in.Index) {
			return reject(d, ErrBadChannel)
		}
		d.Pending.Channel = in.Index
		return d, effects(Show{Screen: ScreenPromptLink})
	case Text:
		if in.Origin != nil {
			return editForwarded(d, *in.Origin, env)
		}
		if d.Pending.Channel < 0 {
			return reject(d, ErrPickChannel)
		}
		target, err := draft.ParseMessageLink(in.Value)
		if err != nil {
			return reject(d, err)
		}
		return editTarget(d, d.Pending.Channel, target, env)
	case Media:
		if in.Origin != nil {
			return editForwarded(d, *in.Origin, env)
		}
		return reject(d, draft.ErrBadLink)
	case Tap:
		if in.Action == ActBack {
			return draft.New(), effects(Discard{}, Show{Screen: ScreenStart})
		}
	}
	return unhandled(d)
}

// editForwarded resolves the channel from the forward origin when none was
// chosen yet.
func editForwarded(d draft.Draft, origin draft.Target, env Env) (draft.Draft, []Effect) {
	if d.Pending.Channel >= 0 {
		return editTarget(d, d.Pending.Channel, origin, env)
	}
	for i, ch := range env.Channels {
		if ch.Matches(origin.ChatRef) {
			return editTarget(d, i, origin, env)
		}
	}
	return reject(d, ErrWrongChannel)
}

func editTarget(d draft.Draft, idx int, target draft.Target, env Env) (draft.Draft, []Effect) {
	if !validIndex(env, idx) {
		return reject(d, ErrBadChannel)
	}
	ch := env.Channels[idx]
	if !ch.Matches(target.ChatRef) {
		return reject(d, ErrWrongChannel)
	}
	target.ChatRef = ch.ChatRef
	n := draft.NewEdit(target)
	n.Pending.Channel = idx
	return n, effects(Load{Channel: idx, Target: target})
}

func editing(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	switch in := in.(type) {
	case Loaded:
		settings := d.Settings
		d.Content = in.Content.Clone()
		d.Settings = settings
		if in.Err != nil {
			return d, effects(Notice{Kind: NoticeLoadFailed}, Show{Screen: ScreenEditMenu})
		}
		return d, effects(Show{Screen: ScreenEditMenu})
	case Tap:
		switch in.Action {
		case ActEditText:
			d.State = draft.EditingText
			return d, effects(Show{Screen: ScreenPromptText})
		case ActEditMedia:
			d.State = draft.EditingMedia
			return d, effects(Show{Screen: ScreenPromptMedia})
		case ActEditButtons:
			d.State = draft.EditingButtons
			return d, effects(Show{Screen: ScreenButtonMenu})
		case ActPreview:
			if !d.Ready() {
				return reject(d, ErrNotReady)
			}
			return d, effects(Preview{})
		case ActSave:
			if !d.Ready() {
				return reject(d, ErrNotReady)
			}
			return d, effects(SaveEdit{})
		case ActPinTarget:
			return d, effects(ApplyTarget{Op: OpPin})
		case ActUnpinTarget:
			return d, effects(ApplyTarget{Op: OpUnpin})
		case ActDeleteTarget:
			d.Pending.Confirm = draft.ConfirmDelete
			return d, effects(Show{Screen: ScreenConfirmDelete})
		case ActConfirmDelete:
			if d.Pending.Confirm != draft.ConfirmDelete {
				return unhandled(d)
			}
			return draft.New(), effects(ApplyTarget{Op: OpDelete}, Discard{})
		case ActKeepContent, ActBack:
			d.Pending.Confirm = draft.ConfirmNone
			return d, effects(Show{Screen: ScreenEditMenu})
		}
	}
	return unhandled(d)
}

func editingButtons(d draft.Draft, in Input, env Env) (draft.Draft, []Effect) {
	if isBack(in) {
		return back(d)
	}
	if tap, ok := in.(Tap); ok {
		if out, effs, handled := buttonMenuTap(d, tap.Action, env); handled {
			return out, effs
		}
	}
	return unhandled(d)
}

func quoting(d draft.Draft, in Input) (draft.Draft, []Effect) {
	if isBack(in) {
		return back(d)
	}
	var body, author string
	switch in := in.(type) {
	case Text:
		body, author = in.Value, in.Author
	case Media:
		body, author = in.Item.Caption, in.Author
	default:
		return unhandled(d)
	}
	d.Text = draft.AppendText(d.Text, draft.FormatQuote(body, author))
	d.State = draft.MainMenu
	return d, effects(Notice{Kind: NoticeQuoteAdded}, Show{Screen: ScreenPostMenu})
}

// cloning targets the primary channel, the first one connected.
func cloning(d draft.Draft, in Input, forward bool) (draft.Draft, []Effect) {
	var src draft.Target
	switch in := in.(type) {
	case Text:
		src = in.Source
	case Media:
		src = in.Source
	case Tap:
		if in.Action != ActBack && in.Action != ActCancel {
			return unhandled(d)
		}
		return leaveClone(d, nil)
	default:
		return unhandled(d)
	}
	return leaveClone(d, Clone{Source: src, Forward: forward, Channel: 0})
}

func leaveClone(d draft.Draft, eff Effect) (draft.Draft, []Effect) {
	var out []Effect
	if eff != nil {
		out = append(out, eff)
	}
	if d.Ready() {
		d.State = draft.MainMenu
		return d, append(out, Show{Screen: ScreenPostMenu})
	}
	d.State = draft.Idle
	return d, append(out, Show{Screen: ScreenStart})
}
