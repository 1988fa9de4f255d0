// Package gcode holds the command and queue-entry types shared by every pile.
//
// The dispatch engine is G-code agnostic: a Command is an opaque line of
// text. The only syntax it understands is the trailing comment introduced by
// ';', which is never transmitted to the machine.
package gcode

import (
	"strings"
	"time"
)

// CommentMarker starts a comment that runs to the end of the line.
const CommentMarker = ";"

// Command is one line destined for the machine, without its line terminator.
// Two equal commands are still distinct once queued; identity is the
// position in a pile.
type Command string

// IsCommentOnly reports whether the command carries nothing but a comment.
func (c Command) IsCommentOnly() bool {
	return strings.HasPrefix(strings.TrimSpace(string(c)), CommentMarker)
}

// IsBlank reports whether the command is empty or whitespace.
func (c Command) IsBlank() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Transmittable reports whether the command is written to the transport.
// Comments and blank lines occupy a pile slot but never hit the wire.
func (c Command) Transmittable() bool {
	return !c.IsBlank() && !c.IsCommentOnly()
}

// Code returns the command text before any trailing comment.
func (c Command) Code() string {
	code, _, _ := strings.Cut(string(c), CommentMarker)
	return strings.TrimRight(code, " \t")
}

// Comment returns the trailing comment without its marker, if any.
func (c Command) Comment() (string, bool) {
	_, comment, ok := strings.Cut(string(c), CommentMarker)
	return comment, ok
}

// Word returns the first whitespace separated token, e.g. "G1".
func (c Command) Word() string {
	fields := strings.Fields(c.Code())
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (c Command) String() string { return string(c) }

// Entry is a command stamped with the time it entered the pipeline. The
// timestamp is informational only; ordering is always pile position.
type Entry struct {
	EnqueuedAt time.Time
	Command    Command
}

// NewEntry stamps cmd with the current time.
func NewEntry(cmd Command) Entry {
	return Entry{EnqueuedAt: time.Now(), Command: cmd}
}
