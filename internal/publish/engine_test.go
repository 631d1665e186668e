package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/postbot/core/metrics"
	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/model"
)

type call struct {
	Op     string
	Chat   string
	Text   string
	Items  []draft.MediaItem
	Target draft.Target
	Opts   SendOptions
	Silent bool
}

type fakeGateway struct {
	calls  []call
	fail   map[string]error // by chat ref
	failOp map[string]error // by op
	nextID int
}

func newFake() *fakeGateway {
	return &fakeGateway{fail: map[string]error{}, failOp: map[string]error{}, nextID: 100}
}

func (f *fakeGateway) record(c call) error {
	f.calls = append(f.calls, c)
	if err := f.failOp[c.Op]; err != nil {
		return err
	}
	chat := c.Chat
	if chat == "" {
		chat = c.Target.ChatRef
	}
	return f.fail[chat]
}

func (f *fakeGateway) id(chat string) draft.Target {
	f.nextID++
	return draft.Target{ChatRef: chat, MessageID: f.nextID}
}

func (f *fakeGateway) SendText(_ context.Context, chat, text string, opts SendOptions) (draft.Target, error) {
	if err := f.record(call{Op: "send_text", Chat: chat, Text: text, Opts: opts}); err != nil {
		return draft.Target{}, err
	}
	return f.id(chat), nil
}

func (f *fakeGateway) SendMedia(_ context.Context, chat string, item draft.MediaItem, caption string, opts SendOptions) (draft.Target, error) {
	if err := f.record(call{Op: "send_media", Chat: chat, Text: caption, Items: []draft.MediaItem{item}, Opts: opts}); err != nil {
		return draft.Target{}, err
	}
	return f.id(chat), nil
}

func (f *fakeGateway) SendAlbum(_ context.Context, chat string, items []draft.MediaItem, caption string, opts SendOptions) ([]draft.Target, error) {
	if err := f.record(call{Op: "send_album", Chat: chat, Text: caption, Items: items, Opts: opts}); err != nil {
		return nil, err
	}
	out := make([]draft.Target, len(items))
	for i := range items {
		out[i] = f.id(chat)
	}
	return out, nil
}

func (f *fakeGateway) EditText(_ context.Context, t draft.Target, text string, opts SendOptions) error {
	return f.record(call{Op: "edit_text", Target: t, Text: text, Opts: opts})
}

func (f *fakeGateway) EditMedia(_ context.Context, t draft.Target, item draft.MediaItem, caption string, opts SendOptions) error {
	return f.record(call{Op: "edit_media", Target: t, Text: caption, Items: []draft.MediaItem{item}, Opts: opts})
}

func (f *fakeGateway) EditCaption(_ context.Context, t draft.Target, caption string, opts SendOptions) error {
	return f.record(call{Op: "edit_caption", Target: t, Text: caption, Opts: opts})
}

func (f *fakeGateway) Pin(_ context.Context, t draft.Target, silent bool) error {
	return f.record(call{Op: "pin", Target: t, Silent: silent})
}

func (f *fakeGateway) Unpin(_ context.Context, t draft.Target) error {
	return f.record(call{Op: "unpin", Target: t})
}

func (f *fakeGateway) Delete(_ context.Context, t draft.Target) error {
	return f.record(call{Op: "delete", Target: t})
}

func (f *fakeGateway) Copy(_ context.Context, src draft.Target, chat string) (draft.Target, error) {
	if err := f.record(call{Op: "copy", Chat: chat, Target: src}); err != nil {
		return draft.Target{}, err
	}
	return f.id(chat), nil
}

func (f *fakeGateway) Forward(_ context.Context, src draft.Target, chat string) (draft.Target, error) {
	if err := f.record(call{Op: "forward", Chat: chat, Target: src}); err != nil {
		return draft.Target{}, err
	}
	return f.id(chat), nil
}

func (f *fakeGateway) ops() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op
	}
	return out
}

func channel(ref string) model.Channel {
	return model.Channel{ChatRef: ref, Title: ref}
}

func photos(n int) []draft.MediaItem {
	out := make([]draft.MediaItem, n)
	for i := range out {
		out[i] = draft.MediaItem{Kind: draft.Photo, Ref: fmt.Sprintf("p%d", i)}
	}
	return out
}

func TestPublishTextWithButton(t *testing.T) {
	gw := newFake()
	e := NewEngine(gw, nil)
	c := draft.NewContent()
	c.Text = "Hello"
	c.Buttons = []draft.Button{{Label: "Visit", URL: "https://x.com"}}

	rec, err := e.Publish(context.Background(), c, channel("@mychannel"))
	require.NoError(t, err)
	require.Len(t, gw.calls, 1)
	got := gw.calls[0]
	assert.Equal(t, "send_text", got.Op)
	assert.Equal(t, "Hello", got.Text)
	assert.False(t, got.Opts.Silent)
	assert.False(t, got.Opts.NoLinkPreview)
	assert.Equal(t, c.Buttons, got.Opts.Buttons)
	assert.Equal(t, ShapeText, rec.Shape)
	assert.False(t, rec.Pinned)
}

func TestPublishFlagsFollowSettings(t *testing.T) {
	gw := newFake()
	e := NewEngine(gw, nil)
	c := draft.Content{Text: "x", Settings: draft.Settings{Notify: false, LinkPreview: false}}
	_, err := e.Publish(context.Background(), c, channel("1"))
	require.NoError(t, err)
	assert.True(t, gw.calls[0].Opts.Silent)
	assert.True(t, gw.calls[0].Opts.NoLinkPreview)
}

func TestPublishSingleMediaUsesTextAsCaption(t *testing.T) {
	gw := newFake()
	e := NewEngine(gw, nil)
	c := draft.NewContent()
	c.Text = "cap"
	c.Media = photos(1)
	_, err := e.Publish(context.Background(), c, channel("1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"send_media"}, gw.ops())
	assert.Equal(t, "cap", gw.calls[0].Text)
}

func TestPublishAlbumWithoutTextOrButtons(t *testing.T) {
	gw := newFake()
	e := NewEngine(gw, nil)
	c := draft.NewContent()
	c.Media = photos(3)

	rec, err := e.Publish(context.Background(), c, channel("1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"send_album"}, gw.ops())
	assert.Empty(t, gw.calls[0].Text)
	assert.Len(t, gw.calls[0].Items, 3)
	assert.Equal(t, ShapeAlbum, rec.Shape)
	assert.Len(t, rec.Extra, 2)
}

func TestPublishAlbumButtonsFollowUp(t *testing.T) {
	gw := newFake()
	e := NewEngine(gw, nil)
	c := draft.NewContent()
	c.Text = "caption"
	c.Media = photos(12)
	c.Buttons = []draft.Button{{Label: "a", URL: "https://a.io"}}

	_, err := e.Publish(context.Background(), c, channel("1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"send_album", "send_text"}, gw.ops())
	assert.Len(t, gw.calls[0].Items, 10)
	assert.Equal(t, "caption", gw.calls[0].Text)
	assert.Empty(t, gw.calls[0].Opts.Buttons)
	assert.Equal(t, AlbumButtonsText, gw.calls[1].Text)
	assert.Equal(t, c.Buttons, gw.calls[1].Opts.Buttons)
}

func TestPublishEmptyContent(t *testing.T) {
	gw := newFake()
	_, err := NewEngine(gw, nil).Publish(context.Background(), draft.NewContent(), channel("1"))
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, gw.calls)

	_, err = NewEngine(gw, nil).Publish(context.Background(), draft.Content{Text: "x"}, channel(""))
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestPinFailureDoesNotFailPublish(t *testing.T) {
	gw := newFake()
	gw.failOp["pin"] = errors.New("not enough rights")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := NewEngine(gw, m)

	c := draft.Content{Text: "x", Settings: draft.Settings{Pin: true, Notify: false}}
	rec, err := e.Publish(context.Background(), c, channel("1"))
	require.NoError(t, err)
	assert.False(t, rec.Pinned)
	var ge *GatewayError
	require.True(t, errors.As(rec.PinErr, &ge))
	assert.Equal(t, "not enough rights", ge.Reason())
	assert.True(t, gw.calls[1].Silent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PinFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishTotal.WithLabelValues("text", "ok")))
}

func TestPinSucceeds(t *testing.T) {
	gw := newFake()
	c := draft.Content{Text: "x", Settings: draft.Settings{Pin: true, Notify: true}}
	rec, err := NewEngine(gw, nil).Publish(context.Background(), c, channel("1"))
	require.NoError(t, err)
	assert.True(t, rec.Pinned)
	assert.Equal(t, rec.Target, gw.calls[1].Target)
	assert.False(t, gw.calls[1].Silent)
}

func TestPublishToManyAggregates(t *testing.T) {
	gw := newFake()
	gw.fail["B"] = errors.New("chat write forbidden")
	e := NewEngine(gw, nil)

	res := e.PublishToMany(context.Background(), draft.Content{Text: "x"},
		[]model.Channel{channel("A"), channel("B"), channel("C")})
	require.Len(t, res.Succeeded, 2)
	assert.Equal(t, "A", res.Succeeded[0].Channel.ChatRef)
	assert.Equal(t, "C", res.Succeeded[1].Channel.ChatRef)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "B", res.Failed[0].Channel.ChatRef)
	assert.Equal(t, "chat write forbidden", ShortReason(res.Failed[0].Err, 50))
	assert.True(t, res.AnySucceeded())
	assert.Equal(t, "partial", res.Outcome())
}

func TestPublishToManyAllFail(t *testing.T) {
	gw := newFake()
	gw.fail["A"] = errors.New("x")
	gw.fail["B"] = errors.New("y")
	res := NewEngine(gw, nil).PublishToMany(context.Background(), draft.Content{Text: "x"},
		[]model.Channel{channel("A"), channel("B")})
	assert.False(t, res.AnySucceeded())
	assert.Equal(t, "fail", res.Outcome())
	assert.Len(t, res.Failed, 2)
}

func TestApplyEditShapes(t *testing.T) {
	target := draft.Target{ChatRef: "-100", MessageID: 5}
	cases := []struct {
		name    string
		content draft.Content
		failOp  string
		wantOps []string
		wantErr error
	}{
		{"text", draft.Content{Text: "t"}, "", []string{"edit_text"}, nil},
		{"single media", draft.Content{Text: "t", Media: photos(1)}, "", []string{"edit_media"}, nil},
		{"album caption", draft.Content{Text: "t", Media: photos(3)}, "", []string{"edit_caption"}, nil},
		{"album without text", draft.Content{Media: photos(2)}, "", nil, ErrUnsupportedMultiMediaEdit},
		{"album caption rejected", draft.Content{Text: "t", Media: photos(2)}, "edit_caption", []string{"edit_caption"}, ErrUnsupportedMultiMediaEdit},
		{"empty", draft.Content{}, "", nil, ErrEmptyContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newFake()
			if tc.failOp != "" {
				gw.failOp[tc.failOp] = errors.New("bad request")
			}
			d := draft.NewEdit(target)
			d.Content = tc.content
			err := NewEngine(gw, nil).ApplyEdit(context.Background(), d)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tc.wantOps == nil {
				assert.Empty(t, gw.calls)
			} else {
				assert.Equal(t, tc.wantOps, gw.ops())
			}
		})
	}
}

func TestApplyEditReplacesKeyboard(t *testing.T) {
	gw := newFake()
	d := draft.NewEdit(draft.Target{ChatRef: "-100", MessageID: 5})
	d.Text = "t"
	require.NoError(t, NewEngine(gw, nil).ApplyEdit(context.Background(), d))
	assert.Empty(t, gw.calls[0].Opts.Buttons)

	assert.ErrorIs(t, NewEngine(gw, nil).ApplyEdit(context.Background(), draft.New()), ErrNotEditing)
}

func TestApplyEditGatewayError(t *testing.T) {
	gw := newFake()
	gw.failOp["edit_text"] = errors.New("message is not modified")
	d := draft.NewEdit(draft.Target{ChatRef: "-100", MessageID: 5})
	d.Text = "t"
	err := NewEngine(gw, nil).ApplyEdit(context.Background(), d)
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "edit_text", ge.Op)
}

func TestCloneAndTargetOps(t *testing.T) {
	gw := newFake()
	e := NewEngine(gw, nil)
	src := draft.Target{ChatRef: "42", MessageID: 7}
	_, err := e.Clone(context.Background(), src, channel("A"), false)
	require.NoError(t, err)
	_, err = e.Clone(context.Background(), src, channel("A"), true)
	require.NoError(t, err)
	tgt := draft.Target{ChatRef: "A", MessageID: 1}
	require.NoError(t, e.Pin(context.Background(), tgt, true))
	require.NoError(t, e.Unpin(context.Background(), tgt))
	require.NoError(t, e.Delete(context.Background(), tgt))
	assert.Equal(t, []string{"copy", "forward", "pin", "unpin", "delete"}, gw.ops())

	gw.fail["A"] = ErrInvalidChannel
	assert.Equal(t, ErrInvalidChannel, e.Delete(context.Background(), tgt))
}

func TestShortReason(t *testing.T) {
	long := errors.New("Bad Request: chat not found because the bot was removed from the channel")
	got := ShortReason(&GatewayError{Op: "send_text", Err: long}, 50)
	assert.Len(t, []rune(got), 53)
	assert.Equal(t, "", ShortReason(nil, 50))
}

func TestPreviewNeverPins(t *testing.T) {
	gw := newFake()
	m := metrics.New(prometheus.NewRegistry())
	c := draft.Content{Text: "x", Settings: draft.Settings{Pin: true}}
	require.NoError(t, NewEngine(gw, m).Preview(context.Background(), c, "42"))
	assert.Equal(t, []string{"send_text"}, gw.ops())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PublishTotal.WithLabelValues("text", "ok")))
	assert.ErrorIs(t, NewEngine(gw, nil).Preview(context.Background(), draft.Content{}, "42"), ErrEmptyContent)
}
