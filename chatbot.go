package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"parley/server/internal/protocol"
)

const botPassword = "chatbot-internal"

var botLines = []string{
	"Hello everyone, I am the resident bot.",
	"Type @help to see the available commands.",
	"Still here, still listening.",
	"Ping me with @<name> <text> and I will quietly ignore it.",
}

// RunChatBot connects a virtual user to the chat listener at addr and sends a
// canned line every interval. It registers itself on first run and falls back
// to a plain login when the account already exists.
func RunChatBot(ctx context.Context, addr, name string, interval time.Duration) {
	conn, err := botLogin(ctx, addr, name)
	if err != nil {
		log.Printf("[chatbot] login failed: %v", err)
		return
	}
	log.Printf("[chatbot] %q connected to %s", name, addr)

	defer func() {
		conn.Close()
		log.Printf("[chatbot] %q disconnected", name)
	}()

	// Incoming frames are irrelevant to the bot; drain them so the server's
	// send buffer never fills up on our account.
	go func() {
		_, _ = io.Copy(io.Discard, conn)
	}()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	idx := 0

	for {
		if err := limiter.Wait(ctx); err != nil {
			_ = botWrite(conn, "@exit")
			return
		}
		if err := botWrite(conn, botLines[idx]); err != nil {
			log.Printf("[chatbot] write failed: %v", err)
			return
		}
		idx = (idx + 1) % len(botLines)
	}
}

// botLogin dials addr and authenticates, trying registration first and a
// plain login second. The server only answers authentication with a frame
// when it fails, so a quiet socket after the probe window means success.
func botLogin(ctx context.Context, addr, name string) (net.Conn, error) {
	conn, failFrame, err := botAuth(ctx, addr, "new "+name+" "+botPassword)
	if err != nil {
		return nil, err
	}
	if conn != nil {
		return conn, nil
	}
	log.Printf("[chatbot] registration rejected (%q), trying login", failFrame)

	conn, failFrame, err = botAuth(ctx, addr, name+" "+botPassword)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, errAuthRejected(failFrame)
	}
	return conn, nil
}

type errAuthRejected string

func (e errAuthRejected) Error() string { return "auth rejected: " + string(e) }

// botAuth performs one dial-and-authenticate attempt. It returns a nil conn
// (and the server's error frame) when the server rejects the credentials.
func botAuth(ctx context.Context, addr, authLine string) (net.Conn, string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, "", err
	}
	if err := botWrite(conn, authLine); err != nil {
		conn.Close()
		return nil, "", err
	}

	_ = conn.SetReadDeadline(time.Now().Add(750 * time.Millisecond))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			_ = conn.SetReadDeadline(time.Time{})
			return conn, "", nil
		}
		conn.Close()
		return nil, "", err
	}

	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, protocol.TagAuthError) {
		conn.Close()
		return nil, strings.TrimPrefix(line, protocol.TagAuthError), nil
	}
	// A history or private replay frame arrived first, so we are in.
	_ = conn.SetReadDeadline(time.Time{})
	return conn, "", nil
}

func botWrite(conn net.Conn, line string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := conn.Write([]byte(line + "\n"))
	return err
}
