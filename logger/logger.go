package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	log zerolog.Logger

	DurationAsString  = true
	RawFieldName      = "raw"
	DataFieldName     = "data"
	DurationFieldName = "dur"
	ErrorsFieldName   = "errors"

	EmptyMessage = ""
)

// JSON tags a byte slice as being a JSON document
type JSON []byte

// Builder appends fields directly to an event.
type Builder func(event *zerolog.Event)

func init() {
	setCallerFormatter()

	// GCP cloud logging severity names
	zerolog.LevelFieldName = "severity"
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		switch l {
		case zerolog.DebugLevel:
			return "DEBUG"
		case zerolog.InfoLevel:
			return "INFO"
		case zerolog.NoLevel:
			return "NOTICE"
		case zerolog.WarnLevel:
			return "WARN"
		case zerolog.ErrorLevel:
			return "ERROR"
		case zerolog.PanicLevel:
			return "CRITICAL"
		case zerolog.FatalLevel:
			return "EMERGENCY"
		default:
			return "DEFAULT"
		}
	}

	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	SetConsoleWriter()
}

func setCallerFormatter() {
	_, file, _, _ := runtime.Caller(0)
	prefix := path.Dir(path.Dir(file))
	if len(prefix) > 0 && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	zerolog.CallerMarshalFunc = func(file string, line int) string {
		if index := strings.Index(file, prefix); index > -1 {
			file = file[index+len(prefix):]
		}
		return fmt.Sprintf("%s:%d", file, line)
	}
}

// Log returns the package logger.
func Log() *zerolog.Logger {
	return &log
}

// SetWriter sends JSON lines to w.
func SetWriter(w io.Writer) {
	log = zerolog.New(w)
}

// SetLogger replaces the package logger.
func SetLogger(logger zerolog.Logger) {
	log = logger
}

// SetLevel parses a level name used by the -l flag. Accepted names are
// debug, verbose/verb, info/notice, warn/warning and quiet/silent.
func SetLevel(name string) error {
	switch strings.ToLower(name) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "verbose", "verb", "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "info", "notice":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "quiet", "silent":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		return fmt.Errorf("invalid log level: %s", name)
	}
	return nil
}

func appendField(event *zerolog.Event, k string, value interface{}) {
	switch v := value.(type) {
	case string:
		event.Str(k, v)
	case time.Time:
		event.Time(k, v)
	case int:
		event.Int(k, v)
	case int32:
		event.Int32(k, v)
	case int64:
		event.Int64(k, v)
	case uint:
		event.Uint(k, v)
	case uint32:
		event.Uint32(k, v)
	case uint64:
		event.Uint64(k, v)
	case float32:
		event.Float32(k, v)
	case float64:
		event.Float64(k, v)
	case bool:
		event.Bool(k, v)
	case error:
		event.AnErr(k, v)
	case time.Duration:
		if DurationAsString {
			event.Str(k, v.String())
		} else {
			event.Dur(k, v)
		}
	case JSON:
		event.RawJSON(k, v)
	case json.Marshaler:
		bytes, err := v.MarshalJSON()
		if err != nil {
			event.AnErr(k, err)
		} else {
			event.RawJSON(k, bytes)
		}
	case Builder:
		v(event)
	default:
		event.Interface(k, v)
	}
}

// doLog interprets args as an optional leading error followed by key/value
// pairs. A string key containing '%' is a format template consuming the
// rest of args, and a trailing key without a value is the message.
func doLog(skip int, event *zerolog.Event, args []interface{}) {
	if event == nil {
		return
	}
	event.Timestamp()
	event.Caller(skip)

	if len(args) > 0 {
		if err, ok := args[0].(error); ok {
			event.Err(err)
			args = args[1:]
		}
	}
	for i := 0; i < len(args); i++ {
		switch k := args[i].(type) {
		case nil:
		case string:
			if strings.Contains(k, "%") {
				event.Msgf(k, args[i+1:]...)
				return
			}
			if i+1 == len(args) {
				event.Msg(k)
				return
			}
			appendField(event, k, args[i+1])
			i++
		case error:
			event.Err(k)
		case []error:
			event.Errs(ErrorsFieldName, k)
		case time.Duration:
			appendField(event, DurationFieldName, k)
		case []byte:
			event.Bytes(RawFieldName, k)
		case JSON:
			event.RawJSON(DataFieldName, k)
		case Builder:
			k(event)
		default:
			appendField(event, DataFieldName, k)
		}
	}
	event.Msg(EmptyMessage)
}

func customLevel(level string) *zerolog.Event {
	l := log.Level(zerolog.NoLevel)
	return l.Log().Str(zerolog.LevelFieldName, level)
}

// Do logs at an arbitrary level.
func Do(level zerolog.Level, args ...interface{}) {
	doLog(2, log.WithLevel(level), args)
}

// DoCaller logs at an arbitrary level with an explicit caller skip.
func DoCaller(level zerolog.Level, skip int, args ...interface{}) {
	doLog(skip, log.WithLevel(level), args)
}

func Trace(args ...interface{}) {
	doLog(2, log.Trace(), args)
}

func Debug(args ...interface{}) {
	doLog(2, log.Debug(), args)
}

// Print logs a message at level Info.
func Print(args ...interface{}) {
	doLog(2, log.Info(), args)
}

func Info(args ...interface{}) {
	doLog(2, log.Info(), args)
}

// Notice logs with the NOTICE severity, which is never filtered by level.
func Notice(args ...interface{}) {
	doLog(2, customLevel("NOTICE"), args)
}

func Warn(args ...interface{}) {
	doLog(2, log.Warn(), args)
}

// WarnErr logs err at level Warn.
func WarnErr(err error, args ...interface{}) {
	doLog(2, log.Warn().Err(err), args)
}

// Error logs err at level Error.
func Error(err error, args ...interface{}) {
	doLog(2, log.Error().Err(err), args)
}

// Fatal logs err then exits the process with status 1.
func Fatal(err error, args ...interface{}) {
	doLog(2, log.Fatal().Err(err), args)
	os.Exit(1)
}

// Panic logs err then panics.
func Panic(err error, args ...interface{}) {
	doLog(2, log.Panic().Err(err), args)
}
