package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/raft"
	"github.com/moontrade/mersenne/dist"
	"github.com/moontrade/mersenne/stream"
)

// ErrSyntax is returned where there was a syntax error
var ErrSyntax = errors.New("syntax error")

// ErrNotLeader is returned when the raft leader is unknown
var ErrNotLeader = raft.ErrNotLeader

// ErrWrongNumArgs is returned when the arg count is wrong
var ErrWrongNumArgs = errors.New("wrong number of arguments")

// ErrUnauthorized is returned when a client connection has not been authorized
var ErrUnauthorized = errors.New("unauthorized")

// ErrUnknownCommand is returned when a command is not known
var ErrUnknownCommand = errors.New("unknown command")

// ErrInvalid is returned when an operation has invalid arguments or options
var ErrInvalid = errors.New("invalid")

// ErrCorrupt is returned when a data is invalid or corrupt
var ErrCorrupt = errors.New("corrupt")

var errWrongNumArgsRaft = errors.New("wrong number of arguments, try RAFT HELP")

var errWrongNumArgsEngine = errors.New("wrong number of arguments, " +
	"try ENGINE HELP")

func errUnknownRaftCommand(args []string) error {
	var cmd string
	for _, arg := range args {
		cmd += arg + " "
	}
	return fmt.Errorf("unknown raft command '%s', try RAFT HELP",
		strings.TrimSpace(cmd))
}

// wireError renders err as a RESP error line. The generator taxonomy maps to
// "ERR invalid length", "ERR invalid parameter..." and "UNAVAILABLE <cause>".
// Errors that already carry an upper case code, such as MOVED or
// CLUSTERDOWN, are written as is; everything else gets the ERR prefix.
func wireError(err error) string {
	switch {
	case errors.Is(err, stream.ErrInvalidLength):
		return "ERR " + stream.ErrInvalidLength.Error()
	case errors.Is(err, dist.ErrInvalidParameter):
		return "ERR " + err.Error()
	case errors.Is(err, stream.ErrStreamUnavailable):
		return "UNAVAILABLE " + err.Error()
	}
	msg := err.Error()
	if hasErrorCode(msg) {
		return msg
	}
	return "ERR " + msg
}

func hasErrorCode(msg string) bool {
	sp := strings.IndexByte(msg, ' ')
	if sp <= 0 {
		return false
	}
	for i := 0; i < sp; i++ {
		if msg[i] < 'A' || msg[i] > 'Z' {
			return false
		}
	}
	return true
}
