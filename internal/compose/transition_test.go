package compose

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/model"
)

func envWith(n int) Env {
	chans := []model.Channel{
		{ChatRef: "-1001", Title: "A", Username: "alpha"},
		{ChatRef: "-1002", Title: "B", Username: "bravo"},
		{ChatRef: "-1003", Title: "C"},
	}
	return Env{Limits: draft.DefaultLimits(), Channels: chans[:n]}
}

// run feeds inputs in order and returns the final draft and the effects of
// the last step.
func run(t *testing.T, d draft.Draft, env Env, inputs ...Input) (draft.Draft, []Effect) {
	t.Helper()
	var effs []Effect
	for _, in := range inputs {
		d, effs = Transition(d, in, env)
	}
	return d, effs
}

func rejected(effs []Effect) error {
	for _, e := range effs {
		if r, ok := e.(Reject); ok {
			return r.Err
		}
	}
	return nil
}

func hasEffect[T Effect](effs []Effect) (T, bool) {
	for _, e := range effs {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestComposeTextAndButton(t *testing.T) {
	env := envWith(1)
	d, effs := run(t, draft.New(), env,
		Tap{ActCreatePost},
		Tap{ActAddText}, Text{Value: "Hello"},
		Tap{ActAddNewButton}, Text{Value: "Go"}, Text{Value: "go.dev"},
	)
	assert.Equal(t, draft.MainMenu, d.State)
	assert.Equal(t, "Hello", d.Text)
	assert.Equal(t, []draft.Button{{Label: "Go", URL: "https://go.dev"}}, d.Buttons)
	n, ok := hasEffect[Notice](effs)
	require.True(t, ok)
	assert.Equal(t, NoticeButtonAdded, n.Kind)
	assert.Equal(t, 1, n.Count)
}

func TestPublishWithoutChannelsKeepsDraft(t *testing.T) {
	d, _ := run(t, draft.New(), envWith(0), Tap{ActCreatePost}, Tap{ActAddText}, Text{Value: "hi"})
	before := d.Clone()

	after, effs := Transition(d, Tap{ActPublish}, envWith(0))
	assert.ErrorIs(t, rejected(effs), ErrNoChannels)
	assert.Equal(t, before, after)
}

func TestPublishEmptyDraftRejected(t *testing.T) {
	d, _ := run(t, draft.New(), envWith(1), Tap{ActCreatePost})
	_, effs := Transition(d, Tap{ActPublish}, envWith(1))
	assert.ErrorIs(t, rejected(effs), ErrNotReady)
}

func TestPublishSingleChannel(t *testing.T) {
	d, effs := run(t, draft.New(), envWith(1),
		Tap{ActCreatePost}, Tap{ActAddText}, Text{Value: "hi"}, Tap{ActPublish})
	p, ok := hasEffect[Publish](effs)
	require.True(t, ok)
	assert.Equal(t, []int{0}, p.Channels)
	assert.Equal(t, draft.MainMenu, d.State)
}

func TestMultiSelectPublishesAscending(t *testing.T) {
	env := envWith(3)
	d, effs := run(t, draft.New(), env,
		Tap{ActCreatePost}, Tap{ActAddText}, Text{Value: "hi"},
		Tap{ActPublish}, Tap{ActSelectMultiple},
		Toggle{2}, Toggle{0}, Toggle{1}, Toggle{1},
	)
	assert.Equal(t, draft.MultiSelectingChannels, d.State)
	assert.Equal(t, []int{0, 2}, d.Selected)
	_, ok := hasEffect[Show](effs)
	assert.True(t, ok)

	d, effs = Transition(d, Tap{ActConfirmSelect}, env)
	p, ok := hasEffect[Publish](effs)
	require.True(t, ok)
	assert.Equal(t, []int{0, 2}, p.Channels)
	assert.Empty(t, d.Selected)
	assert.Equal(t, draft.MainMenu, d.State)
}

func TestConfirmEmptySelection(t *testing.T) {
	env := envWith(2)
	d, _ := run(t, draft.New(), env,
		Tap{ActCreatePost}, Tap{ActAddText}, Text{Value: "hi"},
		Tap{ActPublish}, Tap{ActSelectMultiple})
	_, effs := Transition(d, Tap{ActConfirmSelect}, env)
	assert.ErrorIs(t, rejected(effs), ErrNothingSelected)

	_, effs = Transition(d, Toggle{7}, env)
	assert.ErrorIs(t, rejected(effs), ErrBadChannel)
}

func TestPickChannelPublishes(t *testing.T) {
	env := envWith(2)
	d, _ := run(t, draft.New(), env,
		Tap{ActCreatePost}, Tap{ActAddText}, Text{Value: "hi"}, Tap{ActPublish})
	require.Equal(t, draft.SelectingChannel, d.State)

	_, effs := Transition(d, Pick{1}, env)
	p, ok := hasEffect[Publish](effs)
	require.True(t, ok)
	assert.Equal(t, []int{1}, p.Channels)

	_, effs = Transition(d, Tap{ActSelectAll}, env)
	p, _ = hasEffect[Publish](effs)
	assert.Equal(t, []int{0, 1}, p.Channels)
}

func TestBulkButtonsAtomic(t *testing.T) {
	env := envWith(1)
	d, _ := run(t, draft.New(), env, Tap{ActCreatePost}, Tap{ActBulkButtons})
	require.Equal(t, draft.AddingMultipleButtons, d.State)

	after, effs := Transition(d, Text{Value: "A - x.com | B y.com"}, env)
	var be *draft.BatchError
	require.True(t, errors.As(rejected(effs), &be))
	assert.Equal(t, 1, be.Index)
	assert.Empty(t, after.Buttons)
	assert.Equal(t, draft.AddingMultipleButtons, after.State)

	after, _ = Transition(after, Text{Value: "A - x.com | B - y.com"}, env)
	assert.Len(t, after.Buttons, 2)
	assert.Equal(t, draft.MainMenu, after.State)
}

func TestBulkButtonsOverCap(t *testing.T) {
	env := envWith(1)
	env.Limits.MaxButtons = 2
	d, _ := run(t, draft.New(), env,
		Tap{ActCreatePost}, Tap{ActAddNewButton}, Text{Value: "one"}, Text{Value: "a.io"},
		Tap{ActBulkButtons})
	after, effs := Transition(d, Text{Value: "B - b.io | C - c.io"}, env)
	assert.ErrorIs(t, rejected(effs), draft.ErrButtonLimit)
	assert.Len(t, after.Buttons, 1)

	full, _ := Transition(d, Text{Value: "B - b.io"}, env)
	_, effs = Transition(full, Tap{ActAddNewButton}, env)
	assert.ErrorIs(t, rejected(effs), draft.ErrButtonLimit)
}

func TestInvalidURLReprompts(t *testing.T) {
	env := envWith(1)
	d, _ := run(t, draft.New(), env, Tap{ActCreatePost}, Tap{ActAddNewButton}, Text{Value: "Site"})
	require.Equal(t, draft.AddingButtonURL, d.State)

	after, effs := Transition(d, Text{Value: "not a url"}, env)
	assert.ErrorIs(t, rejected(effs), draft.ErrInvalidURL)
	assert.Equal(t, draft.AddingButtonURL, after.State)
	assert.Equal(t, "Site", after.Pending.ButtonLabel)

	after, _ = Transition(after, Tap{ActBack}, env)
	assert.Equal(t, draft.MainMenu, after.State)
	assert.Empty(t, after.Pending.ButtonLabel)
	assert.Empty(t, after.Buttons)
}

func TestMediaCollection(t *testing.T) {
	env := envWith(1)
	d, _ := run(t, draft.New(), env, Tap{ActCreatePost}, Tap{ActAddMedia})
	for i := 0; i < draft.MaxAlbumItems; i++ {
		var effs []Effect
		d, effs = Transition(d, Media{Item: draft.MediaItem{Kind: draft.Photo, Ref: "p"}}, env)
		n, _ := hasEffect[Notice](effs)
		assert.Equal(t, i+1, n.Count)
		assert.Equal(t, 10, n.Max)
	}
	after, effs := Transition(d, Media{Item: draft.MediaItem{Kind: draft.Photo, Ref: "p"}}, env)
	assert.ErrorIs(t, rejected(effs), draft.ErrMediaLimit)
	assert.Len(t, after.Media, 10)

	_, effs = Transition(d, Text{Value: "oops"}, env)
	assert.ErrorIs(t, rejected(effs), ErrExpectedMedia)

	done, _ := Transition(d, Tap{ActDoneMedia}, env)
	assert.Equal(t, draft.MainMenu, done.State)
	assert.True(t, done.Ready())
}

func TestClearConfirmation(t *testing.T) {
	env := envWith(1)
	d, _ := run(t, draft.New(), env, Tap{ActCreatePost}, Tap{ActAddText}, Text{Value: "hi"})

	_, effs := Transition(d, Tap{ActConfirmClear}, env)
	_, ok := hasEffect[Unhandled](effs)
	assert.True(t, ok, "confirm without question")

	kept, _ := run(t, d, env, Tap{ActClearAll}, Tap{ActKeepContent})
	assert.Equal(t, "hi", kept.Text)

	cleared, _ := run(t, d, env, Tap{ActClearAll}, Tap{ActConfirmClear})
	assert.False(t, cleared.Ready())
	assert.Equal(t, draft.DefaultSettings(), cleared.Settings)
}

func TestToggles(t *testing.T) {
	env := envWith(1)
	d, _ := run(t, draft.New(), env, Tap{ActCreatePost}, Tap{ActTogglePin}, Tap{ActToggleNotify}, Tap{ActTogglePreview})
	assert.Equal(t, draft.Settings{Pin: true, Notify: false, LinkPreview: false}, d.Settings)
}

func TestIdleRejectsMenuTaps(t *testing.T) {
	_, effs := Transition(draft.New(), Tap{ActPublish}, envWith(1))
	assert.ErrorIs(t, rejected(effs), ErrSessionExpired)

	_, effs = Transition(draft.New(), Text{Value: "hello"}, envWith(1))
	_, ok := hasEffect[Unhandled](effs)
	assert.True(t, ok)
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	env := envWith(1)
	d, _ := run(t, draft.New(), env, Tap{ActCreatePost}, Tap{ActAddMedia},
		Media{Item: draft.MediaItem{Kind: draft.Photo, Ref: "a"}})
	snapshot := d.Clone()
	_, _ = Transition(d, Media{Item: draft.MediaItem{Kind: draft.Photo, Ref: "b"}}, env)
	_, _ = Transition(d, Tap{ActClearMedia}, env)
	assert.Equal(t, snapshot, d)
}

func TestEditFlowByLink(t *testing.T) {
	env := envWith(2)
	d, effs := Transition(draft.New(), Tap{ActEditPost}, env)
	s, _ := hasEffect[Show](effs)
	assert.Equal(t, ScreenEditChannelPicker, s.Screen)

	_, effs = Transition(d, Text{Value: "https://t.me/alpha/5"}, env)
	assert.ErrorIs(t, rejected(effs), ErrPickChannel)

	d, _ = Transition(d, Pick{0}, env)
	_, effs = Transition(d, Text{Value: "https://t.me/bravo/5"}, env)
	assert.ErrorIs(t, rejected(effs), ErrWrongChannel)

	_, effs = Transition(d, Text{Value: "hello"}, env)
	assert.ErrorIs(t, rejected(effs), draft.ErrBadLink)

	d, effs = Transition(d, Text{Value: "https://t.me/alpha/5"}, env)
	load, ok := hasEffect[Load](effs)
	require.True(t, ok)
	assert.Equal(t, draft.Target{ChatRef: "-1001", MessageID: 5}, load.Target)
	assert.Equal(t, draft.Editing, d.State)
	tgt, _ := d.EditTarget()
	assert.Equal(t, load.Target, tgt)

	d, _ = Transition(d, Loaded{Content: draft.Content{Text: "old", Buttons: []draft.Button{{Label: "x", URL: "https://x.io"}}}}, env)
	assert.Equal(t, "old", d.Text)
	assert.Equal(t, draft.DefaultSettings(), d.Settings)

	d, _ = run(t, d, env, Tap{ActEditText}, Text{Value: "new"})
	assert.Equal(t, draft.Editing, d.State)
	assert.Equal(t, "new", d.Text)

	_, effs = Transition(d, Tap{ActSave}, env)
	_, ok = hasEffect[SaveEdit](effs)
	assert.True(t, ok)
}

func TestEditFlowByForward(t *testing.T) {
	env := envWith(2)
	d, _ := Transition(draft.New(), Tap{ActEditPost}, env)
	origin := &draft.Target{ChatRef: "-1002", MessageID: 9}
	d, effs := Transition(d, Media{Item: draft.MediaItem{Kind: draft.Photo, Ref: "p"}, Meta: Meta{Origin: origin}}, env)
	load, ok := hasEffect[Load](effs)
	require.True(t, ok)
	assert.Equal(t, 1, load.Channel)
	assert.True(t, d.IsEditing())
}

func TestEditSingleChannelPromptsLink(t *testing.T) {
	d, effs := Transition(draft.New(), Tap{ActEditPost}, envWith(1))
	s, _ := hasEffect[Show](effs)
	assert.Equal(t, ScreenPromptLink, s.Screen)
	assert.Equal(t, 0, d.Pending.Channel)

	_, effs = Transition(draft.New(), Tap{ActEditPost}, envWith(0))
	assert.ErrorIs(t, rejected(effs), ErrNoChannels)
}

func TestEditCancelAndDelete(t *testing.T) {
	env := envWith(1)
	d := draft.NewEdit(draft.Target{ChatRef: "-1001", MessageID: 3})

	after, effs := Transition(d, Tap{ActCancel}, env)
	_, ok := hasEffect[Discard](effs)
	assert.True(t, ok)
	assert.False(t, after.IsEditing())
	assert.Equal(t, draft.Idle, after.State)

	_, effs = Transition(d, Tap{ActConfirmDelete}, env)
	_, ok = hasEffect[Unhandled](effs)
	assert.True(t, ok)

	_, effs = run(t, d, env, Tap{ActDeleteTarget}, Tap{ActConfirmDelete})
	op, ok := hasEffect[ApplyTarget](effs)
	require.True(t, ok)
	assert.Equal(t, OpDelete, op.Op)
}

func TestCreatePostLeavesEdit(t *testing.T) {
	d := draft.NewEdit(draft.Target{ChatRef: "-1001", MessageID: 3})
	d.Text = "old"
	d, _ = Transition(d, Tap{ActCreatePost}, envWith(1))
	assert.False(t, d.IsEditing())
	assert.Empty(t, d.Text)
	assert.Equal(t, draft.MainMenu, d.State)
}

func TestCancelInEditSubStateKeepsDraft(t *testing.T) {
	env := envWith(1)
	target := draft.Target{ChatRef: "-1001", MessageID: 3}
	d := draft.NewEdit(target)
	d.Text = "original body"

	d, _ = run(t, d, env, Tap{ActEditButtons}, Tap{ActAddNewButton}, Text{Value: "Site"})
	require.Equal(t, draft.AddingButtonURL, d.State)

	after, effs := Transition(d, Tap{ActCancel}, env)
	_, discarded := hasEffect[Discard](effs)
	assert.False(t, discarded)
	assert.Equal(t, draft.Editing, after.State)
	assert.True(t, after.IsEditing())
	assert.Equal(t, "original body", after.Text)
	assert.Empty(t, after.Pending.ButtonLabel)

	for _, act := range []Action{ActEditText, ActEditMedia, ActEditButtons} {
		sub, _ := Transition(draft.NewEdit(target), Tap{act}, env)
		out, effs := Transition(sub, Tap{ActCancel}, env)
		_, discarded := hasEffect[Discard](effs)
		assert.False(t, discarded, act)
		assert.Equal(t, draft.Editing, out.State, act)
	}
}

func TestCreatePostStartsEmpty(t *testing.T) {
	env := envWith(1)
	d, _ := run(t, draft.New(), env,
		Tap{ActCreatePost}, Tap{ActAddText}, Text{Value: "old"}, Tap{ActTogglePin}, Tap{ActBack})
	require.Equal(t, draft.Idle, d.State)
	require.Equal(t, "old", d.Text)

	d, _ = Transition(d, Tap{ActCreatePost}, env)
	assert.Equal(t, draft.MainMenu, d.State)
	assert.Empty(t, d.Text)
	assert.Equal(t, draft.New().Settings, d.Settings)
}

func TestQuote(t *testing.T) {
	env := envWith(1)
	d, _ := run(t, draft.New(), env,
		Tap{ActCreatePost}, Tap{ActAddText}, Text{Value: "Intro"},
		Tap{ActQuote}, Text{Value: "wise words", Meta: Meta{Author: "Ann"}})
	assert.Equal(t, "Intro\n\n❝ wise words ❞\n\n— Ann", d.Text)
	assert.Equal(t, draft.MainMenu, d.State)
}

func TestClone(t *testing.T) {
	env := envWith(2)
	d, _ := Transition(draft.New(), Tap{ActCloneForward}, env)
	require.Equal(t, draft.ForwardCloning, d.State)

	src := draft.Target{ChatRef: "42", MessageID: 7}
	d, effs := Transition(d, Text{Value: "x", Meta: Meta{Source: src}}, env)
	c, ok := hasEffect[Clone](effs)
	require.True(t, ok)
	assert.Equal(t, Clone{Source: src, Forward: true, Channel: 0}, c)
	assert.Equal(t, draft.Idle, d.State)

	_, effs = Transition(draft.New(), Tap{ActCloneNormal}, envWith(0))
	assert.ErrorIs(t, rejected(effs), ErrNoChannels)
}

func TestInvalidStateResets(t *testing.T) {
	d := draft.New()
	d.State = "bogus"
	after, effs := Transition(d, Tap{ActPublish}, envWith(1))
	assert.Equal(t, draft.Idle, after.State)
	assert.ErrorIs(t, rejected(effs), ErrSessionExpired)
}
