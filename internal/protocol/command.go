package protocol

import (
	"strconv"
	"strings"
)

// Kind classifies one inbound line.
type Kind int

const (
	KindBroadcast Kind = iota
	KindPrivate
	KindComment
	KindClaim
	KindHelp
	KindExit
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindPrivate:
		return "private"
	case KindComment:
		return "comment"
	case KindClaim:
		return "claim"
	case KindHelp:
		return "help"
	case KindExit:
		return "exit"
	default:
		return "malformed"
	}
}

// Command is one parsed client line.
type Command struct {
	Kind   Kind
	Body   string // broadcast text, private body or comment body
	Target string // private recipient or claim target
	Index  int    // quoted history index for comments
}

// Parse classifies a trimmed input line. Lines not starting with @ are
// broadcasts. @-lines are matched by prefix, so @comment and @claim
// shadow private messages to nicknames starting with those verbs.
func Parse(line string) Command {
	if !strings.HasPrefix(line, "@") {
		return Command{Kind: KindBroadcast, Body: line}
	}
	switch {
	case line == "@help":
		return Command{Kind: KindHelp}
	case line == "@exit":
		return Command{Kind: KindExit}
	case strings.HasPrefix(line, "@comment"):
		return parseComment(strings.TrimSpace(line[len("@comment"):]))
	case strings.HasPrefix(line, "@claim"):
		return parseClaim(strings.TrimSpace(line[len("@claim"):]))
	}
	recipient, body, ok := strings.Cut(line[1:], " ")
	body = strings.TrimSpace(body)
	if !ok || recipient == "" || body == "" {
		return Command{Kind: KindMalformed}
	}
	return Command{Kind: KindPrivate, Target: recipient, Body: body}
}

// parseComment splits "<index> <body>" at the first space. Both the
// space-free @comment3 form and the spaced @comment 3 form arrive
// here already trimmed.
func parseComment(rest string) Command {
	raw, body, ok := strings.Cut(rest, " ")
	body = strings.TrimSpace(body)
	if !ok || body == "" {
		return Command{Kind: KindMalformed}
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return Command{Kind: KindMalformed}
	}
	return Command{Kind: KindComment, Index: index, Body: body}
}

// parseClaim treats the whole remainder as the target nickname, so a
// target that never matches a roster entry falls through to the
// not-connected notice rather than a parse error.
func parseClaim(rest string) Command {
	if rest == "" {
		return Command{Kind: KindMalformed}
	}
	return Command{Kind: KindClaim, Target: rest}
}
