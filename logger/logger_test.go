package logger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func capture(fn func()) gjson.Result {
	var buf bytes.Buffer
	SetWriter(&buf)
	defer SetConsoleWriter()
	fn()
	return gjson.ParseBytes(bytes.TrimSpace(buf.Bytes()))
}

func TestFieldsAndMessage(t *testing.T) {
	line := capture(func() {
		Info("addr", "127.0.0.1:11001", "draws", uint64(7), time.Second, "server listening")
	})
	assert.Equal(t, "INFO", line.Get("severity").String())
	assert.Equal(t, "127.0.0.1:11001", line.Get("addr").String())
	assert.Equal(t, int64(7), line.Get("draws").Int())
	assert.Equal(t, "1s", line.Get(DurationFieldName).String())
	assert.Equal(t, "server listening", line.Get("message").String())
	assert.Contains(t, line.Get("caller").String(), "logger_test.go")
}

func TestFormatTemplate(t *testing.T) {
	line := capture(func() {
		Warn("ignoring join request: %s", "already a member")
	})
	assert.Equal(t, "WARN", line.Get("severity").String())
	assert.Equal(t, "ignoring join request: already a member", line.Get("message").String())
}

func TestErrorAndNotice(t *testing.T) {
	line := capture(func() {
		Error(errors.New("boom"), "command failed")
	})
	assert.Equal(t, "ERROR", line.Get("severity").String())
	assert.Equal(t, "boom", line.Get("error").String())

	line = capture(func() { Notice("bootstrapping new cluster") })
	assert.Equal(t, "NOTICE", line.Get("severity").String())
}

func TestRaftWriter(t *testing.T) {
	line := capture(func() {
		RaftWriter.Write([]byte("2021-11-03T10:00:00.000-0700 [WARN]  raft: heartbeat timeout reached: last-leader= addr=\"127.0.0.1:11001\"\n"))
	})
	assert.Equal(t, "WARN", line.Get("severity").String())
	assert.Equal(t, "raft: heartbeat timeout reached", line.Get("message").String())
	assert.Equal(t, "127.0.0.1:11001", line.Get("addr").String())
}

func TestSetLevel(t *testing.T) {
	assert.NoError(t, SetLevel("warn"))
	line := capture(func() { Info("hidden") })
	assert.False(t, line.Exists())
	assert.NoError(t, SetLevel("verbose"))
	assert.Error(t, SetLevel("loud"))
}
