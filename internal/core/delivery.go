package core

import (
	"log/slog"
	"time"

	"parley/server/internal/metrics"
	"parley/server/internal/protocol"
)

// PrivateOutcome reports how a private message was routed.
type PrivateOutcome int

const (
	PrivateDelivered PrivateOutcome = iota
	PrivateQueued
	PrivateUnknown
)

func (o PrivateOutcome) String() string {
	switch o {
	case PrivateDelivered:
		return "delivered"
	case PrivateQueued:
		return "queued"
	default:
		return "unknown_recipient"
	}
}

// Broadcast fans a stored message out to every online session, the
// author included. Targets are snapshotted under the read lock and
// written after it is released, so a slow peer never stalls the room.
func (s *State) Broadcast(m protocol.Message) {
	frame := protocol.TagChat + m.Text

	s.mu.RLock()
	targets := make([]chan string, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess.Send)
	}
	s.mu.RUnlock()

	sent := 0
	for _, ch := range targets {
		if trySend(ch, frame) {
			sent++
		}
	}
	slog.Debug("broadcast", "index", m.Index, "author", m.Author, "recipients", sent, "total", len(targets))
}

// SendTo delivers one frame to one online user. Returns false when
// the user is offline or their writer stalled past SendTimeout.
func (s *State) SendTo(nick, frame string) bool {
	s.mu.RLock()
	sess, ok := s.sessions[nick]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return trySend(sess.Send, frame)
}

// EnqueuePrivate appends a rendered private body to the recipient's
// offline queue. The Private! tag is attached on replay.
func (s *State) EnqueuePrivate(recipient, rendered string) {
	s.mu.Lock()
	s.pending[recipient] = append(s.pending[recipient], rendered)
	queued := len(s.pending[recipient])
	s.mu.Unlock()

	slog.Debug("private queued", "recipient", recipient, "queued", queued)
}

// DeliverPrivate routes a private message: straight to the recipient
// when online, onto the offline queue when registered, bounced when
// the name is unknown. The route is decided and any enqueue happens
// in one critical section, so a concurrent login either drains the
// queued copy or receives the live one. The sender notice mirrors the
// route taken.
func (s *State) DeliverPrivate(sender, recipient, body string, now time.Time, registered func(string) bool) PrivateOutcome {
	rendered := protocol.RenderPrivate(now, sender, body)

	s.mu.Lock()
	sess, online := s.sessions[recipient]
	var outcome PrivateOutcome
	switch {
	case online:
		outcome = PrivateDelivered
	case registered(recipient):
		s.pending[recipient] = append(s.pending[recipient], rendered)
		outcome = PrivateQueued
	default:
		outcome = PrivateUnknown
	}
	s.mu.Unlock()

	switch outcome {
	case PrivateDelivered:
		trySend(sess.Send, protocol.TagPrivate+rendered)
		s.SendTo(sender, protocol.TagServer+"Private message was sent to "+recipient)
	case PrivateQueued:
		metrics.OfflineQueued.Inc()
		s.SendTo(sender, protocol.TagServer+"User "+recipient+" is not connected")
	case PrivateUnknown:
		s.SendTo(sender, protocol.TagServer+"User "+recipient+" is not registered")
	}

	slog.Debug("private routed", "from", sender, "to", recipient, "outcome", outcome)
	return outcome
}

// trySend writes one frame to a session channel, giving up after
// SendTimeout. The recover absorbs a send on a channel that Leave
// closed between snapshot and write.
func trySend(ch chan string, frame string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case ch <- frame:
		return true
	case <-time.After(SendTimeout):
		metrics.FramesDropped.Inc()
		slog.Debug("send timeout, frame dropped")
		return false
	}
}
