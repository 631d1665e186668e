package bot

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/telegram/keyboard"
	"github.com/m3rciful/postbot/internal/compose"
	"github.com/m3rciful/postbot/internal/model"
)

// Reply keyboard labels. They double as composer triggers.
const (
	LabelCreatePost   = "Create Post"
	LabelEditPost     = "Edit Post"
	LabelEditPostIcon = "✏️ Edit Post"
	LabelChat         = "Chat"
	LabelDeveloper    = "Developer Info"

	LabelConnect    = "Connect"
	LabelConnected  = "Connected"
	LabelDisconnect = "Disconnect"

	LabelAddText       = "Add Text"
	LabelAddMedia      = "Add Media"
	LabelAddButtons    = "Add Buttons"
	LabelPinPost       = "Pin Post"
	LabelNotifications = "Toggle Notifications"
	LabelLinkPreview   = "Link Preview"
	LabelPreview       = "Preview Post"
	LabelPublish       = "Publish Post"
	LabelClearAll      = "Clear All"
	LabelQuote         = "💬 Quote"
	LabelClone         = "📋 Clone"
	LabelBack          = "Back"
	LabelBackIcon      = "🔙 Back"

	LabelBackToPost = "Back to Post Menu"
	LabelBackToEdit = "Back to Edit Menu"

	LabelClearMedia = "Clear Media"
	LabelDoneMedia  = "Done Adding Media"
	CommandDone     = "/done"

	LabelAddNewButton = "Add New Button"
	LabelClearButtons = "Clear Buttons"
	LabelBulkButtons  = "Send Message Format"

	LabelConfirmClear = "Yes, Clear All"
	LabelKeepContent  = "No, Keep Content"

	LabelNormalClone  = "Normal Clone"
	LabelForwardClone = "Forward Clone"

	LabelEditText      = "Edit Text"
	LabelEditMedia     = "Edit Media"
	LabelEditButtons   = "Edit Buttons"
	LabelSave          = "Save Changes"
	LabelPinMessage    = "Pin Message"
	LabelUnpinMessage  = "Unpin Message"
	LabelDeleteMessage = "Delete Message"
	LabelConfirmDelete = "Yes, Delete"
	LabelCancelEdit    = "Cancel Edit"

	LabelSelectMultiple = "Select Multiple"
	LabelAllChannels    = "All Channels"
	LabelConfirmSelect  = "Post to selected"
	LabelCancel         = "Cancel"
	LabelBackToPicker   = "Back to Channel Selection"
	CommandCancel       = "/cancel"
)

var labelActions = map[string]compose.Action{
	LabelCreatePost:   compose.ActCreatePost,
	LabelEditPost:     compose.ActEditPost,
	LabelEditPostIcon: compose.ActEditPost,

	LabelAddText:       compose.ActAddText,
	LabelAddMedia:      compose.ActAddMedia,
	LabelAddButtons:    compose.ActAddButtons,
	LabelPinPost:       compose.ActTogglePin,
	LabelNotifications: compose.ActToggleNotify,
	LabelLinkPreview:   compose.ActTogglePreview,
	LabelPreview:       compose.ActPreview,
	LabelPublish:       compose.ActPublish,
	LabelClearAll:      compose.ActClearAll,
	LabelQuote:         compose.ActQuote,
	LabelBack:          compose.ActBack,
	LabelBackIcon:      compose.ActBack,
	LabelBackToPost:    compose.ActBack,
	LabelBackToEdit:    compose.ActBack,

	LabelClearMedia: compose.ActClearMedia,
	LabelDoneMedia:  compose.ActDoneMedia,
	CommandDone:     compose.ActDoneMedia,

	LabelAddNewButton: compose.ActAddNewButton,
	LabelClearButtons: compose.ActClearButtons,
	LabelBulkButtons:  compose.ActBulkButtons,

	LabelConfirmClear: compose.ActConfirmClear,
	LabelKeepContent:  compose.ActKeepContent,

	LabelNormalClone:  compose.ActCloneNormal,
	LabelForwardClone: compose.ActCloneForward,

	LabelEditText:      compose.ActEditText,
	LabelEditMedia:     compose.ActEditMedia,
	LabelEditButtons:   compose.ActEditButtons,
	LabelSave:          compose.ActSave,
	LabelPinMessage:    compose.ActPinTarget,
	LabelUnpinMessage:  compose.ActUnpinTarget,
	LabelDeleteMessage: compose.ActDeleteTarget,
	LabelConfirmDelete: compose.ActConfirmDelete,
	LabelCancelEdit:    compose.ActCancel,
	LabelCancel:        compose.ActCancel,
	CommandCancel:      compose.ActCancel,
}

// ActionFor maps a menu label to its composer action.
func ActionFor(text string) (compose.Action, bool) {
	act, ok := labelActions[strings.TrimSpace(text)]
	return act, ok
}

// knownActions are the actions accepted from inline "tap" callbacks.
var knownActions = func() map[compose.Action]bool {
	out := make(map[compose.Action]bool, len(labelActions)+2)
	for _, act := range labelActions {
		out[act] = true
	}
	out[compose.ActSelectMultiple] = true
	out[compose.ActSelectAll] = true
	out[compose.ActConfirmSelect] = true
	return out
}()

// Callback keys.
const (
	cbTap        = "tap"
	cbPick       = "pick"
	cbToggle     = "toggle"
	cbDisconnect = "disconnect"
	cbBroadcast  = "broadcast"
)

func mainMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{LabelCreatePost},
		[]string{LabelEditPost, LabelChat},
		[]string{LabelDeveloper},
	)
}

func postMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{LabelAddText, LabelAddMedia},
		[]string{LabelAddButtons, LabelPinPost},
		[]string{LabelNotifications, LabelLinkPreview},
		[]string{LabelPreview, LabelPublish},
		[]string{LabelQuote, LabelClone},
		[]string{LabelClearAll, LabelBack},
	)
}

func chatMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{LabelConnect, LabelConnected},
		[]string{LabelDisconnect},
		[]string{LabelBack},
	)
}

func backLabel(editing bool) string {
	if editing {
		return LabelBackToEdit
	}
	return LabelBackToPost
}

func backMenu(editing bool) *tele.ReplyMarkup {
	return keyboard.ReplyButtons([]string{backLabel(editing)})
}

func mediaMenu(editing bool) *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{LabelClearMedia, LabelDoneMedia},
		[]string{backLabel(editing)},
	)
}

func buttonsMenu(editing bool) *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{LabelAddNewButton, LabelClearButtons},
		[]string{LabelBulkButtons, backLabel(editing)},
	)
}

func cancelEditMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons([]string{LabelCancelEdit})
}

func confirmClearMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons([]string{LabelConfirmClear, LabelKeepContent})
}

func cloneMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{LabelNormalClone, LabelForwardClone},
		[]string{LabelBackToPost},
	)
}

func tap(label string, act compose.Action) keyboard.InlineBtn {
	return keyboard.InlineBtn{Text: label, Unique: cbTap, Data: string(act)}
}

func editMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{tap("📝 "+LabelEditText, compose.ActEditText), tap("📷 "+LabelEditMedia, compose.ActEditMedia)},
		[]keyboard.InlineBtn{tap("🔗 "+LabelEditButtons, compose.ActEditButtons), tap("👁 "+LabelPreview, compose.ActPreview)},
		[]keyboard.InlineBtn{tap("📌 "+LabelPinMessage, compose.ActPinTarget), tap("📍 "+LabelUnpinMessage, compose.ActUnpinTarget)},
		[]keyboard.InlineBtn{tap("🗑 "+LabelDeleteMessage, compose.ActDeleteTarget)},
		[]keyboard.InlineBtn{tap("💾 "+LabelSave, compose.ActSave)},
		[]keyboard.InlineBtn{tap("❌ "+LabelCancelEdit, compose.ActCancel)},
	)
}

func confirmDeleteMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{tap("🗑 "+LabelConfirmDelete, compose.ActConfirmDelete), tap(LabelCancel, compose.ActKeepContent)},
		[]keyboard.InlineBtn{tap(LabelBackToEdit, compose.ActBack)},
	)
}

func channelButtons(chans []model.Channel, unique string, label func(i int, ch model.Channel) string) []keyboard.InlineBtn {
	out := make([]keyboard.InlineBtn, 0, len(chans))
	for i, ch := range chans {
		out = append(out, keyboard.InlineBtn{Text: label(i, ch), Unique: unique, Data: strconv.Itoa(i)})
	}
	return out
}

func channelPicker(chans []model.Channel) *tele.ReplyMarkup {
	btns := channelButtons(chans, cbPick, func(_ int, ch model.Channel) string { return "📢 " + channelTitle(ch) })
	btns = append(btns,
		tap(LabelSelectMultiple, compose.ActSelectMultiple),
		tap(LabelAllChannels, compose.ActSelectAll),
		tap(LabelCancel, compose.ActCancel),
	)
	return keyboard.InlineButtons(btns)
}

func multiPicker(chans []model.Channel, selected []int) *tele.ReplyMarkup {
	chosen := make(map[int]bool, len(selected))
	for _, i := range selected {
		chosen[i] = true
	}
	btns := channelButtons(chans, cbToggle, func(i int, ch model.Channel) string {
		if chosen[i] {
			return "✅ " + channelTitle(ch)
		}
		return "⬜ " + channelTitle(ch)
	})
	btns = append(btns,
		tap(LabelConfirmSelect+" ("+strconv.Itoa(len(selected))+")", compose.ActConfirmSelect),
		tap(LabelAllChannels, compose.ActSelectAll),
		tap(LabelBackToPicker, compose.ActBack),
	)
	return keyboard.InlineButtons(btns)
}

func editChannelPicker(chans []model.Channel) *tele.ReplyMarkup {
	btns := channelButtons(chans, cbPick, func(_ int, ch model.Channel) string { return "📢 " + channelTitle(ch) })
	btns = append(btns, tap(LabelCancel, compose.ActCancel))
	return keyboard.InlineButtons(btns)
}

func disconnectPicker(chans []model.Channel) *tele.ReplyMarkup {
	btns := channelButtons(chans, cbDisconnect, func(_ int, ch model.Channel) string { return "❌ " + channelTitle(ch) })
	btns = append(btns, keyboard.InlineBtn{Text: LabelCancel, Unique: cbDisconnect, Data: "cancel"})
	return keyboard.InlineButtons(btns)
}

func broadcastConfirm() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "✅ Yes, send", Unique: cbBroadcast, Data: "yes"},
		{Text: "❌ Cancel", Unique: cbBroadcast, Data: "no"},
	}, 2)
}

func channelTitle(ch model.Channel) string {
	if ch.Title != "" {
		return ch.Title
	}
	if ch.Username != "" {
		return "@" + strings.TrimPrefix(ch.Username, "@")
	}
	return ch.ChatRef
}
