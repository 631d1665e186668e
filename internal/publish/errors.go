package publish

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyContent is returned for drafts without text and media.
	ErrEmptyContent = errors.New("post has no text or media")
	// ErrInvalidChannel is returned when the target chat cannot be addressed.
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrUnsupportedMultiMediaEdit is returned when a media group edit cannot
	// be expressed as a caption edit.
	ErrUnsupportedMultiMediaEdit = errors.New("media groups only support caption edits")
	// ErrNotEditing is returned by ApplyEdit for drafts without an edit target.
	ErrNotEditing = errors.New("draft is not an edit")
)

// GatewayError is a call the messaging gateway rejected.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Reason is the gateway's message.
func (e *GatewayError) Reason() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Code classifies the error for logs.
func (e *GatewayError) Code() string { return "GATEWAY_REJECTED" }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidChannel) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

// ShortReason renders err for a user summary, cut to max runes.
func ShortReason(err error, max int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var ge *GatewayError
	if errors.As(err, &ge) {
		msg = ge.Reason()
	}
	msg = strings.TrimSpace(msg)
	if max <= 0 || utf8.RuneCountInString(msg) <= max {
		return msg
	}
	r := []rune(msg)
	return string(r[:max]) + "..."
}
