// Package keyboard builds the reply and inline keyboards of the bot.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is a callback button: telebot encodes Unique and Data into the
// callback data.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// URLBtn is an inline button that opens a link.
type URLBtn struct {
	Text string
	URL  string
}

// chunk splits items into rows of at most n; n < 1 means one per row.
func chunk[T any](items []T, n int) [][]T {
	n = max(n, 1)
	rows := make([][]T, 0, (len(items)+n-1)/n)
	for len(items) > 0 {
		end := min(n, len(items))
		rows = append(rows, items[:end:end])
		items = items[end:]
	}
	return rows
}

// ReplyButtons builds a resized reply keyboard, one row per argument.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	kb := make([]tele.Row, 0, len(rows))
	for _, labels := range rows {
		row := make(tele.Row, 0, len(labels))
		for _, l := range labels {
			row = append(row, m.Text(l))
		}
		kb = append(kb, row)
	}
	m.Reply(kb...)
	return m
}

// InlineButtonsRows builds an inline keyboard from rows of callback buttons.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.InlineKeyboard = make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		out := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			out = append(out, *m.Data(b.Text, b.Unique, b.Data).Inline())
		}
		m.InlineKeyboard = append(m.InlineKeyboard, out)
	}
	return m
}

// InlineButtons puts every button on its own row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsRows(chunk(buttons, 1)...)
}

// InlineButtonsNPerRow lays buttons out n per row.
func InlineButtonsNPerRow(buttons []InlineBtn, n int) *tele.ReplyMarkup {
	return InlineButtonsRows(chunk(buttons, n)...)
}

// URLButtonsNPerRow lays URL buttons out n per row. An empty list yields an
// empty inline keyboard, which removes existing buttons on edit.
func URLButtonsNPerRow(buttons []URLBtn, n int) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{}}
	for _, row := range chunk(buttons, n) {
		out := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			out = append(out, tele.InlineButton{Text: b.Text, URL: b.URL})
		}
		m.InlineKeyboard = append(m.InlineKeyboard, out)
	}
	return m
}
