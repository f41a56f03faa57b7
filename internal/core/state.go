// Package core owns the shared room state: history, roster, offline
// private queues, claim counters and the ban table. One mutex
// serialises every mutation; socket writes never happen while it is
// held.
package core

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"parley/server/internal/protocol"
)

// SendTimeout bounds how long a write to one session channel may
// block. A session that cannot take the frame in time loses it.
const SendTimeout = 50 * time.Millisecond

// claimThreshold is the number of complaints that converts into a ban.
const claimThreshold = 3

var (
	// ErrAlreadyOnline rejects a login for a nickname that already has
	// a live session.
	ErrAlreadyOnline = errors.New("user already online")

	// ErrMessageNotFound reports a comment target that never existed
	// or was already swept.
	ErrMessageNotFound = errors.New("message not found")
)

// Session is one connected client as seen by the delivery paths. The
// read side of the connection is owned by the session goroutine; Send
// is the only handle anyone else may touch.
type Session struct {
	Nick string
	Send chan string
}

// State is the authoritative in-memory room.
type State struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	history   []protocol.Message
	nextIndex int
	pending   map[string][]string
	claims    map[string]int

	maxReplay int
	banFor    time.Duration
	bans      *cache.Cache
}

// NewState returns an empty room. maxReplay caps the history replayed
// on login; banFor is how long three claims mute a user.
func NewState(maxReplay int, banFor time.Duration) *State {
	if maxReplay <= 0 {
		maxReplay = 100
	}
	s := &State{
		sessions:  make(map[string]*Session),
		pending:   make(map[string][]string),
		claims:    make(map[string]int),
		maxReplay: maxReplay,
		banFor:    banFor,
		bans:      cache.New(banFor, 0),
	}
	s.bans.OnEvicted(func(nick string, _ any) {
		slog.Info("ban expired", "user", nick)
	})
	return s
}

// Join adds nick to the roster and returns its session together with
// the replay snapshot: the history tail capped at the replay limit
// plus the drained offline privates. Snapshot and drain share one
// critical section, so a private enqueued during login is either
// replayed or delivered live, never both and never lost.
func (s *State) Join(nick string, sendBuf int) (*Session, []protocol.Message, []string, error) {
	if sendBuf <= 0 {
		sendBuf = 64
	}

	s.mu.Lock()
	if _, ok := s.sessions[nick]; ok {
		s.mu.Unlock()
		return nil, nil, nil, ErrAlreadyOnline
	}
	sess := &Session{Nick: nick, Send: make(chan string, sendBuf)}
	s.sessions[nick] = sess

	tail := s.history
	if len(tail) > s.maxReplay {
		tail = tail[len(tail)-s.maxReplay:]
	}
	replay := make([]protocol.Message, len(tail))
	copy(replay, tail)

	queued := s.pending[nick]
	delete(s.pending, nick)
	online := len(s.sessions)
	s.mu.Unlock()

	slog.Info("user joined", "user", nick, "replay", len(replay), "queued", len(queued), "online", online)
	return sess, replay, queued, nil
}

// Leave removes nick from the roster and closes its send channel,
// which ends the session writer. Safe to call twice.
func (s *State) Leave(nick string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[nick]
	if ok {
		delete(s.sessions, nick)
	}
	online := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return false
	}
	close(sess.Send)
	slog.Info("user left", "user", nick, "online", online)
	return true
}

// Online reports whether nick has a live session.
func (s *State) Online(nick string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[nick]
	return ok
}

// AppendBroadcast stores a room message and returns the materialised
// record with its assigned index.
func (s *State) AppendBroadcast(author, body string, now time.Time) protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := protocol.NewMessage(s.nextIndex, now, author, body)
	s.nextIndex++
	s.history = append(s.history, m)
	return m
}

// AppendComment stores a reply quoting the history entry with the
// given index. Indices survive forever even though messages do not,
// so a swept or never-assigned index yields ErrMessageNotFound.
func (s *State) AppendComment(author string, index int, body string, now time.Time) (protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, quoted := range s.history {
		if quoted.Index != index {
			continue
		}
		m := protocol.NewComment(s.nextIndex, now, author, body, quoted)
		s.nextIndex++
		s.history = append(s.history, m)
		return m, nil
	}
	return protocol.Message{}, ErrMessageNotFound
}

// AddClaim files one complaint against target. The third claim resets
// the counter and inserts the ban in the same critical section.
func (s *State) AddClaim(target string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claims[target]++
	count := s.claims[target]
	if count < claimThreshold {
		return count, false
	}
	delete(s.claims, target)
	s.bans.Set(target, time.Now().Add(s.banFor), s.banFor)
	slog.Warn("user muted", "user", target, "duration", s.banFor)
	return count, true
}

// BanStatus reports whether nick is muted and for how much longer.
// Entries past their expiry read as absent even before the sweep
// physically removes them.
func (s *State) BanStatus(nick string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, expiry, ok := s.bans.GetWithExpiration(nick)
	if !ok {
		return 0, false
	}
	left := time.Until(expiry)
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// ClaimCount returns the open complaint count against nick.
func (s *State) ClaimCount(nick string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims[nick]
}

// SweepHistory drops messages older than ttl. History is append-time
// ordered, so the scan stops at the first entry still inside the ttl.
// Dropped indices are never reassigned.
func (s *State) SweepHistory(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cut := 0
	for cut < len(s.history) && now.Sub(s.history[cut].Stamp) > ttl {
		cut++
	}
	if cut == 0 {
		return 0
	}
	rest := make([]protocol.Message, len(s.history)-cut)
	copy(rest, s.history[cut:])
	s.history = rest
	return cut
}

// SweepBans physically removes expired ban entries. BanStatus already
// ignores them; this reclaims the entries and fires the eviction log.
func (s *State) SweepBans() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.bans.ItemCount()
	s.bans.DeleteExpired()
	return before - s.bans.ItemCount()
}

// ClientCount returns the number of live sessions.
func (s *State) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RosterNames returns the online nicknames in sorted order.
func (s *State) RosterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.sessions))
	for nick := range s.sessions {
		out = append(out, nick)
	}
	sort.Strings(out)
	return out
}

// HistoryLen returns the number of messages currently retained.
func (s *State) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// NextIndex returns the index the next stored message will get.
func (s *State) NextIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIndex
}

// RecentHistory returns up to n most recent messages, oldest first.
func (s *State) RecentHistory(n int) []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tail := s.history
	if n > 0 && len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	out := make([]protocol.Message, len(tail))
	copy(out, tail)
	return out
}

// PendingQueues returns how many users have offline privates waiting.
func (s *State) PendingQueues() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// ActiveBans returns the currently muted nicknames in sorted order.
func (s *State) ActiveBans() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.bans.Items()
	out := make([]string, 0, len(items))
	for nick := range items {
		out = append(out, nick)
	}
	sort.Strings(out)
	return out
}
