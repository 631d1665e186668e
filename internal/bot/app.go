// Package bot wires Telegram updates to the composer: it turns messages and
// taps into compose inputs, executes the resulting effects and renders the
// screens.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	coreconfig "github.com/m3rciful/postbot/core/config"
	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	coretelegram "github.com/m3rciful/postbot/core/telegram"
	"github.com/m3rciful/postbot/core/telegram/sender"
	"github.com/m3rciful/postbot/core/telegram/state"
	"github.com/m3rciful/postbot/internal/admin"
	"github.com/m3rciful/postbot/internal/backup"
	"github.com/m3rciful/postbot/internal/channels"
	"github.com/m3rciful/postbot/internal/compose"
	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/preview"
	"github.com/m3rciful/postbot/internal/publish"
	"github.com/m3rciful/postbot/internal/store"
)

// touchEvery throttles last-activity writes per user.
const touchEvery = 5 * time.Minute

// Gateway is everything the bot needs from the messaging API.
type Gateway interface {
	publish.Gateway
	channels.Resolver
	FetchContent(ctx context.Context, t draft.Target, userChat int64) (draft.Content, error)
}

// Outbox delivers replies to the user the update came from.
type Outbox interface {
	Send(ctx context.Context, r Reply) error
}

// Who identifies the sender of an update.
type Who struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
}

// Deps are the collaborators of an App.
type Deps struct {
	Config   *coreconfig.Config
	Store    store.Store
	Sessions *state.Store[draft.Draft]
	// Preview may be nil, which disables link cards in previews.
	Preview *preview.Fetcher
	Admin   *admin.Service
	// Backups may be nil when the feature is off.
	Backups *backup.Manager
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// App holds the handlers. Bind must be called before updates flow.
type App struct {
	cfg      *coreconfig.Config
	store    store.Store
	sessions *state.Store[draft.Draft]
	preview  *preview.Fetcher
	admin    *admin.Service
	backups  *backup.Manager
	metrics  *metrics.Metrics
	now      func() time.Time
	limits   draft.Limits

	gw          Gateway
	disp        *sender.Dispatcher
	reg         *coretelegram.Registry
	engine      *publish.Engine
	registry    *channels.Registry
	broadcaster *admin.Broadcaster

	touchMu sync.Mutex
	touched map[int64]time.Time

	pendingMu  sync.Mutex
	broadcasts map[int64]string
}

// New builds an App from d.
func New(d Deps) *App {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sessions == nil {
		d.Sessions = state.NewStore(draft.New, state.Options{TTL: d.Config.SessionTTL(), Now: d.Now})
	}
	return &App{
		cfg:        d.Config,
		store:      d.Store,
		sessions:   d.Sessions,
		preview:    d.Preview,
		admin:      d.Admin,
		backups:    d.Backups,
		metrics:    d.Metrics,
		now:        d.Now,
		limits:     draft.Limits{MaxButtons: d.Config.Limits.MaxButtons, MaxMedia: d.Config.Limits.MaxMedia},
		touched:    make(map[int64]time.Time),
		broadcasts: make(map[int64]string),
	}
}

// Bind attaches the messaging gateway and the broadcast sender.
func (a *App) Bind(gw Gateway, s admin.Sender) {
	a.gw = gw
	a.engine = publish.NewEngine(gw, a.metrics)
	a.registry = channels.NewRegistry(a.store, gw, channels.Options{
		MaxChannels: a.cfg.Limits.MaxChannels,
		IsAdmin:     a.cfg.IsAdmin,
		Now:         a.now,
		Metrics:     a.metrics,
	})
	a.broadcaster = admin.NewBroadcaster(a.store, s, admin.BroadcastOptions{
		BatchSize: a.cfg.Broadcast.BatchSize,
		Pause:     time.Duration(a.cfg.Broadcast.PauseMS) * time.Millisecond,
		RPS:       a.cfg.Broadcast.RPS,
		Metrics:   a.metrics,
	})
}

// Sessions exposes the draft store, for the sweeper and the router.
func (a *App) Sessions() *state.Store[draft.Draft] { return a.sessions }

// Active reports whether a stored draft expects free-form input.
func Active(d draft.Draft) bool { return d.State != draft.Idle }

func (a *App) env(ctx context.Context, userID int64) (compose.Env, error) {
	chans, err := a.registry.List(ctx, userID)
	if err != nil {
		return compose.Env{}, err
	}
	return compose.Env{Limits: a.limits, Channels: chans}, nil
}

func (a *App) gauge() {
	if a.metrics != nil {
		a.metrics.ActiveSessions.Set(float64(a.sessions.Len()))
	}
}

// touch refreshes last activity at most once per touchEvery.
func (a *App) touch(ctx context.Context, userID int64) {
	now := a.now()
	a.touchMu.Lock()
	last, ok := a.touched[userID]
	if ok && now.Sub(last) < touchEvery {
		a.touchMu.Unlock()
		return
	}
	a.touched[userID] = now
	a.touchMu.Unlock()
	if err := a.store.TouchUser(ctx, userID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Debug(ctx, logger.CompStore, "user.touch", logger.Err(err))
	}
}

// Step feeds one input to the user's draft and runs the effects it yields.
// Steps of one user are serialized by the session lock.
func (a *App) Step(ctx context.Context, who Who, in compose.Input, out Outbox) error {
	a.touch(ctx, who.UserID)
	env, err := a.env(ctx, who.UserID)
	if err != nil {
		logger.Error(ctx, logger.CompCompose, "compose.env", logger.Err(err))
		return out.Send(ctx, Reply{Text: "❌ Storage is unavailable, please try again later."})
	}
	defer a.gauge()
	return a.sessions.Do(who.UserID, func(sess *state.Session[draft.Draft]) error {
		t := &turn{app: a, who: who, env: env, out: out, d: sess.Value, expired: sess.Expired}
		err := t.run(ctx, in)
		if t.discard || isBlank(t.d) {
			sess.Discard()
			return err
		}
		sess.Value = t.d
		return err
	})
}

// isBlank reports an idle draft with nothing worth keeping.
func isBlank(d draft.Draft) bool {
	return d.State == draft.Idle && d.Text == "" && len(d.Media) == 0 && len(d.Buttons) == 0
}

type turn struct {
	app     *App
	who     Who
	env     compose.Env
	out     Outbox
	d       draft.Draft
	expired bool
	discard bool
	// keep cancels a Discard issued for an operation that failed.
	keep  bool
	queue []compose.Input
}

func (t *turn) send(ctx context.Context, r Reply) {
	if err := t.out.Send(ctx, r); err != nil {
		logger.Warn(ctx, logger.CompCompose, "reply.failed", logger.Err(err))
	}
}

func (t *turn) show(ctx context.Context, s compose.Screen) {
	t.send(ctx, render(s, t.d, t.env, t.who.FirstName))
}

func (t *turn) run(ctx context.Context, in compose.Input) error {
	t.queue = append(t.queue, in)
	for len(t.queue) > 0 {
		next := t.queue[0]
		t.queue = t.queue[1:]
		prev := t.d
		var effs []compose.Effect
		t.d, effs = compose.Transition(prev, next, t.env)
		logger.Debug(ctx, logger.CompCompose, "compose.transition",
			slog.String("input", inputName(next)),
			slog.String("from", string(prev.State)),
			slog.String("to", string(t.d.State)),
			slog.Int("effects", len(effs)),
		)
		for _, e := range effs {
			t.exec(ctx, prev, e)
		}
	}
	if t.keep {
		t.discard = false
	}
	return nil
}

func (t *turn) exec(ctx context.Context, prev draft.Draft, e compose.Effect) {
	switch e := e.(type) {
	case compose.Show:
		t.show(ctx, e.Screen)
	case compose.Notice:
		t.send(ctx, notice(e, t.d))
	case compose.Reject:
		r := Reply{Text: rejectText(e.Err, t.env.Limits)}
		if errors.Is(e.Err, compose.ErrSessionExpired) {
			r.Markup = mainMenu()
		}
		t.send(ctx, r)
	case compose.Unhandled:
		t.unhandled(ctx)
	case compose.Discard:
		t.discard = true
	case compose.Preview:
		t.preview(ctx)
	case compose.Publish:
		t.publish(ctx, e)
	case compose.Load:
		content, err := t.app.gw.FetchContent(ctx, e.Target, t.who.ChatID)
		if err != nil {
			logger.Warn(ctx, logger.CompCompose, "edit.load",
				slog.String("channel", e.Target.ChatRef),
				slog.Int("message_id", e.Target.MessageID),
				logger.Err(err),
			)
		}
		t.queue = append(t.queue, compose.Loaded{Content: content, Err: err})
	case compose.SaveEdit:
		t.save(ctx)
	case compose.ApplyTarget:
		t.applyTarget(ctx, prev, e.Op)
	case compose.Clone:
		t.clone(ctx, e)
	}
}

func (t *turn) unhandled(ctx context.Context) {
	switch {
	case t.expired:
		t.send(ctx, Reply{Text: rejectText(compose.ErrSessionExpired, t.env.Limits), Markup: mainMenu()})
	case t.d.State == draft.Idle:
		t.send(ctx, Reply{Text: "🤔 I did not understand that. Use the menu below.", Markup: mainMenu()})
	default:
		t.send(ctx, Reply{Text: "🤔 Please use the menu buttons."})
	}
}

func (t *turn) preview(ctx context.Context) {
	c := t.d.Content
	t.send(ctx, Reply{Text: previewHeader(c)})
	if err := t.app.engine.Preview(ctx, c, chatRef(t.who.ChatID)); err != nil {
		t.send(ctx, Reply{Text: "❌ *Preview Error*\n\n" + rejectText(err, t.env.Limits)})
	}
	if c.Settings.LinkPreview && t.app.preview != nil {
		if u, ok := preview.FirstURL(c.Text); ok {
			t.send(ctx, Reply{Text: linkCard(t.app.preview.Fetch(ctx, u))})
		}
	}
	if t.d.IsEditing() {
		t.show(ctx, compose.ScreenEditMenu)
		return
	}
	t.show(ctx, compose.ScreenPostMenu)
}

func (t *turn) publish(ctx context.Context, e compose.Publish) {
	chans := make([]model.Channel, 0, len(e.Channels))
	for _, i := range e.Channels {
		if i >= 0 && i < len(t.env.Channels) {
			chans = append(chans, t.env.Channels[i])
		}
	}
	res := t.app.engine.PublishToMany(ctx, t.d.Content, chans)
	record := coreconfig.Enabled(t.app.cfg.Features.Analytics)
	for _, rec := range res.Succeeded {
		if !record {
			break
		}
		post := model.Post{
			UserID:    t.who.UserID,
			ChatRef:   rec.Channel.ChatRef,
			MessageID: rec.Target.MessageID,
			CreatedAt: t.app.now(),
		}
		if err := t.app.store.RecordPost(ctx, post); err != nil {
			logger.Warn(ctx, logger.CompStore, "post.record", logger.Err(err))
		}
	}
	logger.UserAction(ctx, t.who.UserID, "PUBLISH_POST",
		slog.String("outcome", res.Outcome()),
		slog.Int("channels", len(chans)),
		slog.Int("failed", len(res.Failed)),
	)
	t.send(ctx, Reply{Text: publishSummary(res, len(chans))})
	if res.AnySucceeded() {
		t.d = draft.New()
		t.discard = true
		t.show(ctx, compose.ScreenStart)
		return
	}
	t.show(ctx, compose.ScreenPostMenu)
}

func (t *turn) save(ctx context.Context) {
	if err := t.app.engine.ApplyEdit(ctx, t.d); err != nil {
		t.send(ctx, Reply{Text: "❌ *Could not save changes*\n\n" + rejectText(err, t.env.Limits)})
		t.show(ctx, compose.ScreenEditMenu)
		return
	}
	target, _ := t.d.EditTarget()
	logger.UserAction(ctx, t.who.UserID, "EDIT_POST",
		slog.String("channel", target.ChatRef),
		slog.Int("message_id", target.MessageID),
	)
	t.send(ctx, Reply{Text: "✅ *Changes saved!*"})
	t.d = draft.New()
	t.discard = true
	t.show(ctx, compose.ScreenStart)
}

func (t *turn) applyTarget(ctx context.Context, prev draft.Draft, op compose.TargetOp) {
	target, ok := prev.EditTarget()
	if !ok {
		t.send(ctx, Reply{Text: rejectText(compose.ErrSessionExpired, t.env.Limits), Markup: mainMenu()})
		return
	}
	var err error
	var done string
	switch op {
	case compose.OpPin:
		err, done = t.app.engine.Pin(ctx, target, !prev.Settings.Notify), "📌 Message pinned."
	case compose.OpUnpin:
		err, done = t.app.engine.Unpin(ctx, target), "📍 Message unpinned."
	case compose.OpDelete:
		err, done = t.app.engine.Delete(ctx, target), "🗑 Message deleted."
	}
	if err != nil {
		t.send(ctx, Reply{Text: rejectText(err, t.env.Limits)})
		if op == compose.OpDelete {
			t.d = prev
			t.d.Pending.Confirm = draft.ConfirmNone
			t.keep = true
		}
		t.show(ctx, compose.ScreenEditMenu)
		return
	}
	t.send(ctx, Reply{Text: done})
	if op == compose.OpDelete {
		logger.UserAction(ctx, t.who.UserID, "DELETE_POST",
			slog.String("channel", target.ChatRef),
			slog.Int("message_id", target.MessageID),
		)
		t.show(ctx, compose.ScreenStart)
	}
}

func (t *turn) clone(ctx context.Context, e compose.Clone) {
	if e.Channel < 0 || e.Channel >= len(t.env.Channels) {
		t.send(ctx, Reply{Text: rejectText(compose.ErrNoChannels, t.env.Limits)})
		return
	}
	ch := t.env.Channels[e.Channel]
	if _, err := t.app.engine.Clone(ctx, e.Source, ch, e.Forward); err != nil {
		t.send(ctx, Reply{Text: rejectText(err, t.env.Limits)})
		return
	}
	verb := "copied"
	if e.Forward {
		verb = "forwarded"
	}
	t.send(ctx, Reply{Text: fmt.Sprintf("✅ Message %s to *%s*.", verb, channelTitleMD(ch))})
}

func inputName(in compose.Input) string {
	switch in := in.(type) {
	case compose.Tap:
		return "tap:" + string(in.Action)
	case compose.Text:
		return "text"
	case compose.Media:
		return "media:" + string(in.Item.Kind)
	case compose.Pick:
		return "pick:" + strconv.Itoa(in.Index)
	case compose.Toggle:
		return "toggle:" + strconv.Itoa(in.Index)
	case compose.Loaded:
		return "loaded"
	}
	return "unknown"
}

func chatRef(id int64) string { return strconv.FormatInt(id, 10) }
