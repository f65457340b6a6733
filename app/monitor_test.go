package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage(t *testing.T) {
	now := time.Unix(1700000000, 1500)
	msg := Message{Addr: "127.0.0.1:5000", Args: []string{"gaussian", "12"}}
	assert.Equal(t, `1700000000.000001 [127.0.0.1:5000] "gaussian" "12"`,
		formatMessage(now, msg))
	msg.Args = []string{"read", "a\"b"}
	assert.Equal(t, `1700000000.000001 [127.0.0.1:5000] "read" "a\"b"`,
		formatMessage(now, msg))
}

func TestMonitorObservers(t *testing.T) {
	mon := newMonitor(nil)
	a := mon.NewObserver()
	b := mon.NewObserver()

	mon.Send(Message{Args: []string{"int"}})
	mon.Send(Message{Args: []string{"auth", "secret"}})
	mon.Send(Message{Args: []string{"raft", "info"}})

	assert.Equal(t, []string{"int"}, (<-a.C()).Args)
	assert.Equal(t, []string{"int"}, (<-b.C()).Args)
	select {
	case msg := <-a.C():
		t.Fatalf("unexpected message %v", msg.Args)
	default:
	}

	a.Stop()
	a.Stop()
	_, ok := <-a.C()
	assert.False(t, ok)

	// slow observers drop messages instead of blocking
	for i := 0; i < 100; i++ {
		mon.Send(Message{Args: []string{"word"}})
	}
	assert.Len(t, b.C(), cap(b.C()))
	b.Stop()
}
