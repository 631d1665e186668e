package gateway

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/internal/channels"
	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/publish"
)

type sent struct {
	to   string
	what interface{}
	opts []interface{}
}

type fakeAPI struct {
	sends   []sent
	edits   []sent
	deleted []tele.Editable
	pinned  []sent
	chats   map[string]*tele.Chat
	role    tele.MemberStatus
	sendErr error
	nextID  int
}

func (f *fakeAPI) msg(to tele.Recipient) *tele.Message {
	f.nextID++
	id, _ := strconv.ParseInt(to.Recipient(), 10, 64)
	return &tele.Message{ID: f.nextID, Chat: &tele.Chat{ID: id}}
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sends = append(f.sends, sent{to.Recipient(), what, opts})
	return f.msg(to), nil
}

func (f *fakeAPI) SendAlbum(to tele.Recipient, a tele.Album, opts ...interface{}) ([]tele.Message, error) {
	f.sends = append(f.sends, sent{to.Recipient(), a, opts})
	out := make([]tele.Message, len(a))
	for i := range a {
		out[i] = *f.msg(to)
	}
	return out, nil
}

func (f *fakeAPI) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.edits = append(f.edits, sent{"", what, opts})
	return nil, errors.New("telegram: Bad Request: message is not modified (400)")
}

func (f *fakeAPI) EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error) {
	f.edits = append(f.edits, sent{"", caption, opts})
	return &tele.Message{}, nil
}

func (f *fakeAPI) Pin(msg tele.Editable, opts ...interface{}) error {
	f.pinned = append(f.pinned, sent{"", msg, opts})
	return nil
}

func (f *fakeAPI) Unpin(tele.Recipient, ...int) error { return nil }

func (f *fakeAPI) Delete(msg tele.Editable) error {
	f.deleted = append(f.deleted, msg)
	return nil
}

func (f *fakeAPI) Copy(to tele.Recipient, _ tele.Editable, _ ...interface{}) (*tele.Message, error) {
	f.nextID++
	return &tele.Message{ID: f.nextID}, nil
}

func (f *fakeAPI) Forward(to tele.Recipient, _ tele.Editable, _ ...interface{}) (*tele.Message, error) {
	m := f.msg(to)
	m.Caption = "hello"
	m.Photo = &tele.Photo{File: tele.File{FileID: "ph1"}}
	m.ReplyMarkup = &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		{{Text: "Site", URL: "https://example.com"}, {Text: "cb", Data: "x"}},
	}}
	return m, nil
}

func (f *fakeAPI) ChatByID(id int64) (*tele.Chat, error) {
	for _, c := range f.chats {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, tele.ErrChatNotFound
}

func (f *fakeAPI) ChatByUsername(name string) (*tele.Chat, error) {
	c, ok := f.chats[name]
	if !ok {
		return nil, tele.ErrChatNotFound
	}
	return c, nil
}

func (f *fakeAPI) ChatMemberOf(_, _ tele.Recipient) (*tele.ChatMember, error) {
	return &tele.ChatMember{Role: f.role}, nil
}

func newFake() *fakeAPI {
	return &fakeAPI{chats: map[string]*tele.Chat{
		"@news": {ID: -1001, Title: "News", Username: "news", Type: tele.ChatChannel},
	}}
}

func TestSendTextOptions(t *testing.T) {
	api := newFake()
	g := New(api, &tele.User{ID: 42}, nil)

	tgt, err := g.SendText(context.Background(), "-1001", "hi", publish.SendOptions{
		Silent:        true,
		NoLinkPreview: true,
		Buttons:       []draft.Button{{Label: "A", URL: "https://a"}, {Label: "B", URL: "https://b"}, {Label: "C", URL: "https://c"}},
	})
	require.NoError(t, err)
	assert.Equal(t, draft.Target{ChatRef: "-1001", MessageID: 1}, tgt)

	require.Len(t, api.sends, 1)
	opts := api.sends[0].opts
	require.Len(t, opts, 3)
	rm := opts[0].(*tele.ReplyMarkup)
	require.Len(t, rm.InlineKeyboard, 2)
	assert.Len(t, rm.InlineKeyboard[0], 2)
	assert.Equal(t, "https://c", rm.InlineKeyboard[1][0].URL)
	assert.Equal(t, tele.Silent, opts[1])
	assert.Equal(t, tele.NoPreview, opts[2])
}

func TestSendAlbumCaptionOnFirst(t *testing.T) {
	api := newFake()
	g := New(api, &tele.User{ID: 42}, nil)
	items := []draft.MediaItem{{Kind: draft.Photo, Ref: "a"}, {Kind: draft.Video, Ref: "b"}}

	out, err := g.SendAlbum(context.Background(), "-1001", items, "cap", publish.SendOptions{Buttons: []draft.Button{{Label: "x", URL: "https://x"}}})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	album := api.sends[0].what.(tele.Album)
	assert.Equal(t, "cap", album[0].(*tele.Photo).Caption)
	assert.Empty(t, album[1].(*tele.Video).Caption)
	assert.Empty(t, api.sends[0].opts, "albums never carry a keyboard")
}

func TestEditIgnoresNotModified(t *testing.T) {
	api := newFake()
	g := New(api, &tele.User{ID: 42}, nil)
	err := g.EditText(context.Background(), draft.Target{ChatRef: "@news", MessageID: 7}, "x", publish.SendOptions{})
	require.NoError(t, err)
	require.Len(t, api.edits, 1)
	rm := api.edits[0].opts[0].(*tele.ReplyMarkup)
	assert.Empty(t, rm.InlineKeyboard)
}

func TestEditUnknownUsername(t *testing.T) {
	g := New(newFake(), &tele.User{ID: 42}, nil)
	err := g.EditCaption(context.Background(), draft.Target{ChatRef: "@ghost", MessageID: 1}, "x", publish.SendOptions{})
	assert.ErrorIs(t, err, channels.ErrChatNotFound)
}

func TestResolveAndAdmin(t *testing.T) {
	api := newFake()
	g := New(api, &tele.User{ID: 42}, nil)
	ctx := context.Background()

	chat, err := g.ResolveChat(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, channels.Chat{ChatRef: "-1001", Title: "News", Username: "news", Kind: "channel"}, chat)

	chat, err = g.ResolveChat(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(t, "News", chat.Title)

	_, err = g.ResolveChat(ctx, "@ghost")
	assert.ErrorIs(t, err, channels.ErrChatNotFound)

	api.role = tele.Member
	ok, err := g.BotIsAdmin(ctx, "-1001")
	require.NoError(t, err)
	assert.False(t, ok)
	api.role = tele.Creator
	ok, _ = g.BotIsAdmin(ctx, "-1001")
	assert.True(t, ok)
}

func TestFetchContent(t *testing.T) {
	api := newFake()
	g := New(api, &tele.User{ID: 42}, nil)
	c, err := g.FetchContent(context.Background(), draft.Target{ChatRef: "-1001", MessageID: 3}, 555)
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Text)
	assert.Equal(t, []draft.MediaItem{{Kind: draft.Photo, Ref: "ph1"}}, c.Media)
	assert.Equal(t, []draft.Button{{Label: "Site", URL: "https://example.com"}}, c.Buttons)
	assert.Len(t, api.deleted, 1, "forwarded copy is removed")
}

func TestCopyFillsChat(t *testing.T) {
	g := New(newFake(), &tele.User{ID: 42}, nil)
	tgt, err := g.Copy(context.Background(), draft.Target{ChatRef: "555", MessageID: 9}, "-1001")
	require.NoError(t, err)
	assert.Equal(t, "-1001", tgt.ChatRef)
}

func TestAuthorAndOrigin(t *testing.T) {
	m := &tele.Message{Sender: &tele.User{ID: 1, FirstName: "Ann", LastName: "Lee"}}
	assert.Equal(t, "Ann Lee", AuthorOf(m))
	assert.Nil(t, OriginOf(m))

	m.Origin = &tele.MessageOrigin{Chat: &tele.Chat{ID: -1009, Title: "Daily"}, MessageID: 12}
	assert.Equal(t, "Daily", AuthorOf(m))
	assert.Equal(t, &draft.Target{ChatRef: "-1009", MessageID: 12}, OriginOf(m))

	_, err := Sendable(draft.MediaItem{Kind: "sticker"}, "")
	assert.Error(t, err)
}
