package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley/server/internal/core"
	"parley/server/internal/metrics"
	"parley/server/internal/protocol"
	"parley/server/internal/registry"
)

// sendBuf is the per-session outbound channel capacity. A full
// history replay can exceed it; the writer goroutine drains while the
// session blocks on the overflow.
const sendBuf = 64

// readChunk caps one inbound read. One client write is treated as one
// message; embedded newlines split it into several.
const readChunk = 1024

// writeTimeout bounds one frame write to the socket.
const writeTimeout = 5 * time.Second

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := slog.With("sid", uuid.NewString(), "remote", conn.RemoteAddr().String())
	metrics.SessionsTotal.Inc()

	reader := bufio.NewReader(conn)
	nick, ok := s.authenticate(conn, reader, log)
	if !ok {
		return
	}
	log = log.With("user", nick)

	sess, replay, queued, err := s.state.Join(nick, sendBuf)
	if err != nil {
		_ = writeFrame(conn, protocol.TagAuthError+"User already logged in!")
		metrics.AuthFailures.Inc()
		log.Warn("login rejected", "err", err)
		return
	}

	metrics.ConnectedClients.Inc()
	writerDone := make(chan struct{})
	defer func() {
		s.state.Leave(nick)
		<-writerDone
		metrics.ConnectedClients.Dec()
		// Stamp again on the way out so last_visit reads as last seen.
		if err := s.users.UpdateLastVisit(nick, time.Now()); err != nil {
			log.Warn("last visit stamp failed", "err", err)
		}
		log.Info("session closed")
	}()

	// The writer owns the socket's write half. After a failed write it
	// keeps draining so no sender ever blocks on a dead session.
	go func() {
		defer close(writerDone)
		failed := false
		for frame := range sess.Send {
			if failed {
				continue
			}
			if err := writeFrame(conn, frame); err != nil {
				failed = true
				_ = conn.Close()
				log.Debug("write failed", "err", err)
			}
		}
	}()

	// Replay precedes the read loop: history first, then the offline
	// privates drained by Join. Blocking sends are safe here, the
	// writer above is already consuming.
	for _, m := range replay {
		sess.Send <- protocol.TagHistory + m.Text
	}
	for _, body := range queued {
		sess.Send <- protocol.TagPrivate + body
	}

	s.readLoop(reader, sess, log)
}

// authenticate runs the first line exchange: either
// "<nick> <password>" or "new <nick> <password>". On failure it
// writes one AuthError frame and reports false; the caller closes.
func (s *Server) authenticate(conn net.Conn, reader *bufio.Reader, log *slog.Logger) (string, bool) {
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Debug("closed before auth", "err", err)
		return "", false
	}
	fields := strings.Fields(line)

	var (
		user    registry.User
		authErr error
	)
	now := time.Now()
	switch {
	case len(fields) == 2:
		user, authErr = s.users.Authenticate(fields[0], fields[1], now)
	case len(fields) == 3 && fields[0] == "new":
		user, authErr = s.users.Register(fields[1], fields[2], now)
	default:
		_ = writeFrame(conn, protocol.TagAuthError+"Wrong command! Use <nickname> <password> or new <nickname> <password>")
		metrics.AuthFailures.Inc()
		log.Warn("malformed auth line")
		return "", false
	}

	switch {
	case authErr == nil:
		return user.Username, true
	case errors.Is(authErr, registry.ErrUserNotFound):
		_ = writeFrame(conn, protocol.TagAuthError+"User not found! Register first!")
	case errors.Is(authErr, registry.ErrWrongPassword):
		_ = writeFrame(conn, protocol.TagAuthError+"Wrong password! Try again!")
	case errors.Is(authErr, registry.ErrUserExists):
		_ = writeFrame(conn, protocol.TagAuthError+"User already exists!")
	default:
		log.Error("registry failure", "err", authErr)
		_ = writeFrame(conn, protocol.TagAuthError+"Authentication failed! Try again later!")
	}
	metrics.AuthFailures.Inc()
	log.Warn("authentication rejected", "err", authErr)
	return "", false
}

// readLoop consumes input until EOF, a read error or @exit.
func (s *Server) readLoop(reader *bufio.Reader, sess *core.Session, log *slog.Logger) {
	buf := make([]byte, readChunk)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			for _, line := range strings.Split(strings.TrimSpace(string(buf[:n])), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if quit := s.dispatch(sess, line, log); quit {
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug("read failed", "err", err)
			}
			return
		}
	}
}

// dispatch executes one parsed line. It reports true when the session
// asked to exit.
func (s *Server) dispatch(sess *core.Session, line string, log *slog.Logger) bool {
	cmd := protocol.Parse(line)

	// A mute blocks broadcasts only; commands keep working.
	if cmd.Kind == protocol.KindBroadcast {
		if left, banned := s.state.BanStatus(sess.Nick); banned {
			minutes := int(math.Ceil(left.Minutes()))
			s.state.SendTo(sess.Nick, fmt.Sprintf("%sYou are not allowed to send messages (%d minutes left)", protocol.TagServer, minutes))
			log.Debug("broadcast blocked by mute", "minutes_left", minutes)
			return false
		}
	}

	switch cmd.Kind {
	case protocol.KindExit:
		return true

	case protocol.KindBroadcast:
		m := s.state.AppendBroadcast(sess.Nick, cmd.Body, time.Now())
		s.state.Broadcast(m)
		metrics.Messages.WithLabelValues("broadcast").Inc()

	case protocol.KindPrivate:
		outcome := s.state.DeliverPrivate(sess.Nick, cmd.Target, cmd.Body, time.Now(), s.users.Exists)
		if outcome != core.PrivateUnknown {
			metrics.Messages.WithLabelValues("private").Inc()
		}

	case protocol.KindComment:
		m, err := s.state.AppendComment(sess.Nick, cmd.Index, cmd.Body, time.Now())
		if err != nil {
			s.state.SendTo(sess.Nick, protocol.TagServer+"Message not found or deleted!")
			return false
		}
		s.state.Broadcast(m)
		metrics.Messages.WithLabelValues("comment").Inc()

	case protocol.KindClaim:
		s.handleClaim(sess.Nick, cmd.Target, log)

	case protocol.KindHelp:
		for _, help := range protocol.HelpLines {
			s.state.SendTo(sess.Nick, protocol.TagHelp+help)
		}

	case protocol.KindMalformed:
		s.state.SendTo(sess.Nick, protocol.TagServer+"Don't use @ symbol if its not a command!")
	}
	return false
}

// handleClaim files a complaint. Claims only count against online
// users, so offline targets cannot be farmed into a ban.
func (s *Server) handleClaim(claimant, target string, log *slog.Logger) {
	if !s.state.Online(target) {
		s.state.SendTo(claimant, protocol.TagServer+"User "+target+" is not connected")
		return
	}
	count, banned := s.state.AddClaim(target)
	metrics.Claims.Inc()
	s.state.SendTo(claimant, protocol.TagServer+"Claim accepted for "+target)
	if banned {
		metrics.Bans.Inc()
		log.Info("claims converted to mute", "target", target, "claims", count)
	}
}

// writeFrame writes one tagged frame plus its terminating newline
// straight to the socket. Used by the writer goroutine and, before it
// exists, by the auth phase.
func writeFrame(conn net.Conn, frame string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write([]byte(frame + "\n"))
	return err
}
