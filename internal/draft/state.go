package draft

// State is the composition step that decides which input is accepted next.
type State string

const (
	Idle                   State = "idle"
	MainMenu               State = "main_menu"
	AddingText             State = "adding_text"
	AddingMedia            State = "adding_media"
	AddingButtonText       State = "adding_button_text"
	AddingButtonURL        State = "adding_button_url"
	AddingMultipleButtons  State = "adding_multiple_buttons"
	SelectingChannel       State = "selecting_channel"
	MultiSelectingChannels State = "multi_selecting_channels"
	Editing                State = "editing"
	EditingText            State = "editing_text"
	EditingMedia           State = "editing_media"
	EditingButtons         State = "editing_buttons"
	Quoting                State = "quoting"
	NormalCloning          State = "normal_cloning"
	ForwardCloning         State = "forward_cloning"
)

// States lists every state in declaration order.
var States = []State{
	Idle, MainMenu, AddingText, AddingMedia, AddingButtonText, AddingButtonURL,
	AddingMultipleButtons, SelectingChannel, MultiSelectingChannels, Editing,
	EditingText, EditingMedia, EditingButtons, Quoting, NormalCloning, ForwardCloning,
}

// Valid reports whether s is one of States.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}
