package publish

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/model"
)

// Shape is the outgoing message layout chosen for a draft.
type Shape string

const (
	ShapeText  Shape = "text"
	ShapeMedia Shape = "media"
	ShapeAlbum Shape = "album"
)

// ShapeOf picks the layout for c.
func ShapeOf(c draft.Content) Shape {
	switch {
	case len(c.Media) == 0:
		return ShapeText
	case len(c.Media) == 1:
		return ShapeMedia
	default:
		return ShapeAlbum
	}
}

// Receipt describes one successful channel publish.
type Receipt struct {
	Channel model.Channel
	// Target is the post itself; the lead message for albums.
	Target draft.Target
	Shape  Shape
	// Extra lists the other album messages and the buttons message.
	Extra  []draft.Target
	Pinned bool
	// PinErr is set when pinning was requested and failed.
	PinErr error
}

// Failure is one channel that could not be published to.
type Failure struct {
	Channel model.Channel
	Err     error
}

// MultiResult aggregates a publish to several channels.
type MultiResult struct {
	Succeeded []Receipt
	Failed    []Failure
}

// AnySucceeded reports whether at least one channel received the post.
func (r MultiResult) AnySucceeded() bool { return len(r.Succeeded) > 0 }

// Outcome is "ok", "partial" or "fail".
func (r MultiResult) Outcome() string {
	switch {
	case len(r.Failed) == 0 && len(r.Succeeded) > 0:
		return "ok"
	case len(r.Succeeded) > 0:
		return "partial"
	default:
		return "fail"
	}
}

// Engine executes publishes and edits through a Gateway.
type Engine struct {
	gw      Gateway
	metrics *metrics.Metrics
}

// NewEngine returns an engine over gw. m may be nil.
func NewEngine(gw Gateway, m *metrics.Metrics) *Engine {
	return &Engine{gw: gw, metrics: m}
}

func sendOptions(c draft.Content) SendOptions {
	return SendOptions{
		Silent:        !c.Settings.Notify,
		NoLinkPreview: !c.Settings.LinkPreview,
		Buttons:       c.Buttons,
	}
}

// Publish sends c to ch. A failed pin is reported in the receipt and does
// not fail the publish.
func (e *Engine) Publish(ctx context.Context, c draft.Content, ch model.Channel) (Receipt, error) {
	start := time.Now()
	rec, err := e.publish(ctx, c, ch)
	e.observePublish(ctx, rec, ch, err, start)
	return rec, err
}

// Preview renders c into chatRef in its publish shape. It never pins and is
// not counted as a publish.
func (e *Engine) Preview(ctx context.Context, c draft.Content, chatRef string) error {
	c.Settings.Pin = false
	_, err := e.publish(ctx, c, model.Channel{ChatRef: chatRef})
	return err
}

func (e *Engine) publish(ctx context.Context, c draft.Content, ch model.Channel) (Receipt, error) {
	rec := Receipt{Channel: ch, Shape: ShapeOf(c)}
	if !c.Ready() {
		return rec, ErrEmptyContent
	}
	chatRef := strings.TrimSpace(ch.ChatRef)
	if chatRef == "" {
		return rec, ErrInvalidChannel
	}

	opts := sendOptions(c)
	switch rec.Shape {
	case ShapeText:
		t, err := e.gw.SendText(ctx, chatRef, c.Text, opts)
		if err != nil {
			return rec, wrap("send_text", err)
		}
		rec.Target = t
	case ShapeMedia:
		opts.NoLinkPreview = false
		t, err := e.gw.SendMedia(ctx, chatRef, c.Media[0], c.Text, opts)
		if err != nil {
			return rec, wrap("send_media", err)
		}
		rec.Target = t
	case ShapeAlbum:
		items := c.Media
		if len(items) > draft.MaxAlbumItems {
			items = items[:draft.MaxAlbumItems]
		}
		albumOpts := SendOptions{Silent: opts.Silent}
		sent, err := e.gw.SendAlbum(ctx, chatRef, items, c.Text, albumOpts)
		if err != nil {
			return rec, wrap("send_album", err)
		}
		if len(sent) == 0 {
			return rec, wrap("send_album", errors.New("empty album response"))
		}
		rec.Target = sent[0]
		rec.Extra = append(rec.Extra, sent[1:]...)
		if len(c.Buttons) > 0 {
			btnOpts := SendOptions{Silent: opts.Silent, Buttons: c.Buttons}
			t, err := e.gw.SendText(ctx, chatRef, AlbumButtonsText, btnOpts)
			if err != nil {
				// the album is already out, so the publish stands
				logger.Warn(ctx, logger.CompPublish, "publish.buttons_failed",
					slog.String("status", "partial"),
					slog.String("channel", chatRef),
					logger.Err(err),
				)
			} else {
				rec.Extra = append(rec.Extra, t)
			}
		}
	}

	if c.Settings.Pin {
		if err := e.gw.Pin(ctx, rec.Target, !c.Settings.Notify); err != nil {
			rec.PinErr = wrap("pin", err)
		} else {
			rec.Pinned = true
		}
	}
	return rec, nil
}

func (e *Engine) observePublish(ctx context.Context, rec Receipt, ch model.Channel, err error, start time.Time) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("channel", ch.ChatRef),
		slog.String("shape", string(rec.Shape)),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, logger.Err(err))
		logger.Warn(ctx, logger.CompPublish, "publish.failed", attrs...)
	} else {
		attrs = append(attrs, slog.Int("message_id", rec.Target.MessageID), slog.Bool("pinned", rec.Pinned))
		if rec.PinErr != nil {
			attrs = append(attrs, slog.String("cause", logger.SanitizeLimit(rec.PinErr.Error(), 256)))
		}
		logger.Info(ctx, logger.CompPublish, "publish.sent", attrs...)
	}
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	e.metrics.PublishTotal.WithLabelValues(string(rec.Shape), outcome).Inc()
	if rec.PinErr != nil {
		e.metrics.PinFailures.Inc()
	}
}

// PublishToMany publishes c to every channel in order. It never stops at a
// failure.
func (e *Engine) PublishToMany(ctx context.Context, c draft.Content, chans []model.Channel) MultiResult {
	var res MultiResult
	for _, ch := range chans {
		rec, err := e.Publish(ctx, c, ch)
		if err != nil {
			res.Failed = append(res.Failed, Failure{Channel: ch, Err: err})
			continue
		}
		res.Succeeded = append(res.Succeeded, rec)
	}
	logger.Info(ctx, logger.CompPublish, "publish.summary",
		slog.String("outcome", res.Outcome()),
		slog.Int("channels", len(chans)),
		slog.Int("succeeded", len(res.Succeeded)),
		slog.Int("failed", len(res.Failed)),
	)
	return res
}

// ApplyEdit overwrites the edit target of d with its content. The inline
// keyboard is always replaced by d.Buttons.
func (e *Engine) ApplyEdit(ctx context.Context, d draft.Draft) error {
	target, ok := d.EditTarget()
	if !ok {
		return ErrNotEditing
	}
	shape := ShapeOf(d.Content)
	err := e.applyEdit(ctx, d.Content, target)

	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("channel", target.ChatRef),
		slog.Int("message_id", target.MessageID),
		slog.String("shape", string(shape)),
	}
	if err != nil {
		attrs = append(attrs, logger.Err(err))
		logger.Warn(ctx, logger.CompPublish, "edit.failed", attrs...)
	} else {
		logger.Info(ctx, logger.CompPublish, "edit.saved", attrs...)
	}
	if e.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "fail"
		}
		e.metrics.EditsTotal.WithLabelValues(string(shape), outcome).Inc()
	}
	return err
}

func (e *Engine) applyEdit(ctx context.Context, c draft.Content, target draft.Target) error {
	if !c.Ready() {
		return ErrEmptyContent
	}
	if strings.TrimSpace(target.ChatRef) == "" || target.MessageID <= 0 {
		return ErrInvalidChannel
	}
	opts := SendOptions{NoLinkPreview: !c.Settings.LinkPreview, Buttons: c.Buttons}
	switch ShapeOf(c) {
	case ShapeText:
		return wrap("edit_text", e.gw.EditText(ctx, target, c.Text, opts))
	case ShapeMedia:
		return wrap("edit_media", e.gw.EditMedia(ctx, target, c.Media[0], c.Text, opts))
	}
	if c.Text == "" {
		return ErrUnsupportedMultiMediaEdit
	}
	if err := e.gw.EditCaption(ctx, target, c.Text, opts); err != nil {
		logger.Debug(ctx, logger.CompPublish, "edit.caption_failed", logger.Err(err))
		return ErrUnsupportedMultiMediaEdit
	}
	return nil
}

// Pin pins target, optionally without notifying members.
func (e *Engine) Pin(ctx context.Context, target draft.Target, silent bool) error {
	return wrap("pin", e.gw.Pin(ctx, target, silent))
}

// Unpin unpins target.
func (e *Engine) Unpin(ctx context.Context, target draft.Target) error {
	return wrap("unpin", e.gw.Unpin(ctx, target))
}

// Delete removes target from its channel.
func (e *Engine) Delete(ctx context.Context, target draft.Target) error {
	return wrap("delete", e.gw.Delete(ctx, target))
}

// Clone copies src to ch, or forwards it when forward is set.
func (e *Engine) Clone(ctx context.Context, src draft.Target, ch model.Channel, forward bool) (draft.Target, error) {
	if strings.TrimSpace(ch.ChatRef) == "" {
		return draft.Target{}, ErrInvalidChannel
	}
	if forward {
		t, err := e.gw.Forward(ctx, src, ch.ChatRef)
		return t, wrap("forward", err)
	}
	t, err := e.gw.Copy(ctx, src, ch.ChatRef)
	return t, wrap("copy", err)
}
