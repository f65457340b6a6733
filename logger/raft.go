package logger

import (
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/zerolog"
)

type raftWriter struct{}

// RaftWriter receives hclog formatted lines from raft and re-emits them
// through the package logger with the matching level and parsed key=value
// fields.
var RaftWriter = &raftWriter{}

// Write parses lines of the form `<time> [LEVEL] name: message: k=v k="v v"`.
func (w *raftWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if idx := strings.IndexByte(msg, ' '); idx != -1 && msg[0] != '[' {
		msg = msg[idx+1:]
	}
	level := zerolog.DebugLevel
	if idx := strings.IndexByte(msg, ']'); idx != -1 && len(msg) > 1 && msg[0] == '[' {
		switch msg[1] {
		case 'W':
			level = zerolog.WarnLevel
		case 'E':
			level = zerolog.ErrorLevel
		case 'T':
			level = zerolog.TraceLevel
		case 'I':
			level = zerolog.InfoLevel
		}
		msg = strings.TrimLeft(msg[idx+1:], " ")
	}

	var args []interface{}
	if idx := strings.LastIndex(msg, ": "); idx > -1 && strings.IndexByte(msg[idx:], '=') > -1 {
		args = parseFields(strings.TrimSpace(msg[idx+1:]))
		msg = strings.TrimSpace(msg[:idx])
	}
	args = append(args, msg)
	DoCaller(level, 6, args...)
	return len(p), nil
}

func parseFields(fields string) []interface{} {
	var args []interface{}
	for len(fields) > 0 && len(args) < 14 {
		idx := strings.IndexByte(fields, '=')
		if idx == -1 {
			break
		}
		name := strings.TrimSpace(fields[:idx])
		fields = fields[idx+1:]
		var value string
		if fields == "" || fields[0] == ' ' {
			fields = strings.TrimSpace(fields)
		} else if fields[0] == '"' {
			fields = fields[1:]
			end := strings.IndexByte(fields, '"')
			if end == -1 {
				value, fields = fields, ""
			} else {
				value, fields = fields[:end], strings.TrimSpace(fields[end+1:])
			}
		} else {
			end := strings.IndexByte(fields, ' ')
			if end == -1 {
				value, fields = fields, ""
			} else {
				value, fields = fields[:end], strings.TrimSpace(fields[end+1:])
			}
		}
		args = append(args, name, value)
	}
	return args
}

// NewRaftLogger returns an hclog.Logger for raft at the given hclog level
// name that writes through RaftWriter.
func NewRaftLogger(level string) hclog.Logger {
	opts := *hclog.DefaultOptions
	opts.Name = "raft"
	opts.Level = hclog.LevelFromString(level)
	opts.Output = RaftWriter
	return hclog.New(&opts)
}
