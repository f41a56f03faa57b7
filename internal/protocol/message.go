package protocol

import (
	"fmt"
	"time"
)

// Frame tags. Every server-to-client frame starts with exactly one of
// these literal prefixes; the session writer appends the terminating
// newline.
const (
	TagChat      = "Chat!"
	TagPrivate   = "Private!"
	TagServer    = "Server!"
	TagHistory   = "History!"
	TagHelp      = "help!"
	TagAuthError = "AuthError!"
)

// StampLayout is the timestamp format embedded in rendered messages.
const StampLayout = "02.01.06 15:04:05"

// Message is one stored room message. Text is the fully rendered form
// shown to clients; comments embed the quoted original inside it.
type Message struct {
	Index  int
	Stamp  time.Time
	Author string
	Text   string
}

// NewMessage materialises a broadcast message with its rendered text.
func NewMessage(index int, stamp time.Time, author, body string) Message {
	return Message{
		Index:  index,
		Stamp:  stamp,
		Author: author,
		Text:   fmt.Sprintf("[%d] (%s) %s: %s", index, stamp.Format(StampLayout), author, body),
	}
}

// NewComment materialises a reply that quotes an earlier message. The
// quoted text is carried verbatim above the fresh rendered line, so
// the frame spans two wire lines.
func NewComment(index int, stamp time.Time, author, body string, quoted Message) Message {
	m := NewMessage(index, stamp, author, body)
	m.Text = "Commenting " + quoted.Text + "\n" + m.Text
	return m
}

// RenderPrivate renders the body of a private message. The Private!
// tag is attached at send time so queued offline copies produce the
// same bytes as immediate delivery.
func RenderPrivate(stamp time.Time, sender, body string) string {
	return fmt.Sprintf("(%s) %s: %s", stamp.Format(StampLayout), sender, body)
}

// HelpLines are the payloads sent one frame each, tagged help!, in
// response to @help.
var HelpLines = []string{
	"@<username> <message> -> send private message to user",
	"@help -> show this message",
	"@claim<username> -> claim a user",
	"@comment<message id> <new message> -> comment a message",
	"@exit -> exit from the messenger",
}
