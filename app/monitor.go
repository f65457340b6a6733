package app

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/redcon"
)

// An Observer holds a channel that delivers the messages for all commands
// processed by the server.
type Observer interface {
	Stop()
	C() <-chan Message
}

type observer struct {
	mon  *monitor
	msgC chan Message
}

func (o *observer) C() <-chan Message {
	return o.msgC
}

func (o *observer) Stop() {
	o.mon.obMu.Lock()
	defer o.mon.obMu.Unlock()
	if _, ok := o.mon.obs[o]; ok {
		delete(o.mon.obs, o)
		close(o.msgC)
	}
}

// Monitor represents an interface for sending and consuming command
// messages that are processed by the server.
type Monitor interface {
	// Send a message to observers
	Send(msg Message)
	// NewObserver returns a new Observer containing a channel that will send
	// the messages for every command processed by the service.
	// Stop the observer to release associated resources.
	NewObserver() Observer
}

type monitor struct {
	s    *service
	obMu sync.Mutex
	obs  map[*observer]struct{}
}

func newMonitor(s *service) *monitor {
	m := &monitor{s: s}
	m.obs = make(map[*observer]struct{})
	return m
}

// Send delivers msg to every observer. Observers that fall behind miss
// messages.
func (m *monitor) Send(msg Message) {
	if len(msg.Args) > 0 {
		// do not allow monitoring of certain system commands
		switch msg.Args[0] {
		case "raft", "auth", "monitor":
			return
		}
	}

	m.obMu.Lock()
	defer m.obMu.Unlock()
	for o := range m.obs {
		select {
		case o.msgC <- msg:
		default:
		}
	}
}

func (m *monitor) NewObserver() Observer {
	o := new(observer)
	o.mon = m
	o.msgC = make(chan Message, 64)
	m.obMu.Lock()
	m.obs[o] = struct{}{}
	m.obMu.Unlock()
	return o
}

// formatMessage renders msg the way the redis MONITOR command does.
func formatMessage(now time.Time, msg Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%06d [%s]", now.Unix(), now.Nanosecond()/1000,
		msg.Addr)
	for _, arg := range msg.Args {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Quote(arg))
	}
	return sb.String()
}

// MONITOR
// help: streams every command processed by the server until the connection
//       is closed.
func cmdMONITOR(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	return Hijack(func(s *service, conn redcon.DetachedConn) {
		defer conn.Close()
		obs := s.Monitor().NewObserver()
		defer obs.Stop()
		conn.WriteString("OK")
		if err := conn.Flush(); err != nil {
			return
		}
		go func() {
			// any input or a closed connection ends the stream
			conn.ReadCommand()
			obs.Stop()
		}()
		for msg := range obs.C() {
			conn.WriteString(formatMessage(time.Now(), msg))
			if err := conn.Flush(); err != nil {
				return
			}
		}
	}), nil
}
