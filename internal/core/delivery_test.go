package core

import (
	"testing"
	"time"

	"parley/server/internal/protocol"
)

func TestBroadcastReachesWholeRosterIncludingAuthor(t *testing.T) {
	s := NewState(10, time.Minute)
	alice := joinTestUser(t, s, "alice")
	bob := joinTestUser(t, s, "bob")

	m := s.AppendBroadcast("alice", "hi all", time.Now())
	s.Broadcast(m)

	want := protocol.TagChat + m.Text
	assertRecv(t, alice.Send, want)
	assertRecv(t, bob.Send, want)
}

func TestSendToOfflineUserReturnsFalse(t *testing.T) {
	s := NewState(10, time.Minute)
	if s.SendTo("ghost", protocol.TagServer+"hello") {
		t.Fatal("SendTo succeeded for offline user")
	}
}

func TestDeliverPrivateToOnlineRecipient(t *testing.T) {
	s := NewState(10, time.Minute)
	alice := joinTestUser(t, s, "alice")
	bob := joinTestUser(t, s, "bob")
	now := time.Now()

	outcome := s.DeliverPrivate("alice", "bob", "how are you", now, registeredAll)
	if outcome != PrivateDelivered {
		t.Fatalf("outcome = %v, want delivered", outcome)
	}

	rendered := protocol.RenderPrivate(now, "alice", "how are you")
	assertRecv(t, bob.Send, protocol.TagPrivate+rendered)
	assertRecv(t, alice.Send, protocol.TagServer+"Private message was sent to bob")

	// No broadcast leaks out of a private exchange.
	assertNoRecv(t, alice.Send)
	assertNoRecv(t, bob.Send)
}

func TestDeliverPrivateQueuesForOfflineRegisteredUser(t *testing.T) {
	s := NewState(10, time.Minute)
	alice := joinTestUser(t, s, "alice")
	now := time.Now()

	outcome := s.DeliverPrivate("alice", "bob", "later", now, registeredAll)
	if outcome != PrivateQueued {
		t.Fatalf("outcome = %v, want queued", outcome)
	}
	assertRecv(t, alice.Send, protocol.TagServer+"User bob is not connected")

	// Next login drains exactly one copy.
	_, _, queued, err := s.Join("bob", 8)
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	rendered := protocol.RenderPrivate(now, "alice", "later")
	if len(queued) != 1 || queued[0] != rendered {
		t.Fatalf("queued = %#v, want [%q]", queued, rendered)
	}

	s.Leave("bob")
	_, _, queued, err = s.Join("bob", 8)
	if err != nil {
		t.Fatalf("rejoin bob: %v", err)
	}
	if len(queued) != 0 {
		t.Fatalf("second login drained %#v, want nothing", queued)
	}
}

func TestDeliverPrivateToUnknownRecipient(t *testing.T) {
	s := NewState(10, time.Minute)
	alice := joinTestUser(t, s, "alice")

	outcome := s.DeliverPrivate("alice", "nobody", "hi", time.Now(), func(string) bool { return false })
	if outcome != PrivateUnknown {
		t.Fatalf("outcome = %v, want unknown", outcome)
	}
	assertRecv(t, alice.Send, protocol.TagServer+"User nobody is not registered")
	if got := s.PendingQueues(); got != 0 {
		t.Fatalf("pending queues = %d, want 0", got)
	}
}

func TestPendingPrivatesKeepFIFOOrder(t *testing.T) {
	s := NewState(10, time.Minute)
	joinTestUser(t, s, "alice")
	base := time.Now()

	for i, body := range []string{"first", "second", "third"} {
		s.DeliverPrivate("alice", "bob", body, base.Add(time.Duration(i)*time.Second), registeredAll)
	}

	_, _, queued, err := s.Join("bob", 8)
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if len(queued) != 3 {
		t.Fatalf("queued %d messages, want 3", len(queued))
	}
	for i, body := range []string{"first", "second", "third"} {
		want := protocol.RenderPrivate(base.Add(time.Duration(i)*time.Second), "alice", body)
		if queued[i] != want {
			t.Fatalf("queued[%d] = %q, want %q", i, queued[i], want)
		}
	}
}

func registeredAll(string) bool { return true }

func joinTestUser(t *testing.T, s *State, nick string) *Session {
	t.Helper()
	sess, _, _, err := s.Join(nick, 8)
	if err != nil {
		t.Fatalf("join %s: %v", nick, err)
	}
	return sess
}

func assertRecv(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("received %q, want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func assertNoRecv(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("expected no frame, got %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}
