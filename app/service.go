package app

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

// Receiver is the pending reply of a command.
type Receiver interface {
	Recv() (interface{}, time.Duration, error)
}

// SendOptions identify the connection a command comes from.
type SendOptions struct {
	// Context is the connection session created by Opened.
	Context interface{}
	// From orders a connection's later commands after its pending writes.
	From interface{}
}

var defSendOpts = &SendOptions{}

// A Message represents a command and is in a format that is consumed by
// an Observer.
type Message struct {
	// Args are the command arguments as received.
	Args []string
	// Resp is the command reponse, if not an error.
	Resp interface{}
	// Err is the command error, if not successful.
	Err error
	// Elapsed is the amount of time that the command took to process.
	Elapsed time.Duration
	// Addr is the remote TCP address of the connection that generated
	// this message.
	Addr string
}

// service routes commands to connection sessions, the raft log and the
// shared engine.
type service struct {
	m    *machine
	ra   *raftWrap
	auth string
	mon  *monitor

	pendingMu sync.Mutex
	pending   map[interface{}]*writeRequestFuture
}

func newService(m *machine, ra *raftWrap, auth string) *service {
	s := &service{m: m, ra: ra, auth: auth}
	s.pending = make(map[interface{}]*writeRequestFuture)
	s.mon = newMonitor(s)
	return s
}

// Monitor returns the observers of every processed command.
func (s *service) Monitor() Monitor {
	return s.mon
}

func (s *service) Auth(auth string) error {
	if s.auth != auth {
		return ErrUnauthorized
	}
	return nil
}

// Opened creates the connection session in the configured mode.
func (s *service) Opened(addr string) (context interface{}, accept bool) {
	var user interface{}
	if s.m.connOpened != nil {
		if user, accept = s.m.connOpened(addr); !accept {
			return nil, false
		}
	}
	return newSession(addr, user, s.m.mode, s.m.seed), true
}

// Closed passes the ConnOpened context of a session to ConnClosed.
func (s *service) Closed(context interface{}, addr string) {
	if s.m.connClosed == nil {
		return
	}
	var user interface{}
	if sess, ok := context.(*session); ok {
		user = sess.user
	}
	s.m.connClosed(user, addr)
}

// Send runs a command and returns its pending reply.
//
// Draw and read commands from a connection in a private session run at once
// against the session engine. Otherwise draws become writes: every write goes
// through the raft log, so each server advances the shared engine the same
// way. Reads inspect the shared engine on the leader. System commands run
// outside the machine. A connection's reads and system commands wait for its
// earlier writes.
func (s *service) Send(args []string, opts *SendOptions) Receiver {
	if len(args) == 0 {
		return Response(nil, 0, nil)
	}
	name := strings.ToLower(args[0])
	cmd, ok := s.m.commands[name]
	if !ok || name == "reseed" {
		// reseed is only issued by runReseeder
		return Response(nil, 0, ErrUnknownCommand)
	}
	if opts == nil {
		opts = defSendOpts
	}
	if sess, ok := opts.Context.(*session); ok && (cmd.kind == 'd' || cmd.kind == 'r') {
		if r := s.sendSession(sess, cmd, args, opts.From); r != nil {
			return r
		}
	}
	switch cmd.kind {
	case 'w', 'd':
		return s.submit(args, opts.From)
	case 'r':
		s.flush(opts.From)
		return s.run(func() (interface{}, error) {
			return s.execRead(cmd, args)
		})
	default:
		s.flush(opts.From)
		return s.run(func() (interface{}, error) {
			return cmd.fn(intermediateMachine{m: s.m, context: opts.Context},
				s.ra, args)
		})
	}
}

// sendSession runs a draw or read against a private session engine. It
// returns nil when the session is shared.
func (s *service) sendSession(sess *session, cmd command, args []string,
	from interface{},
) Receiver {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.private {
		return nil
	}
	s.flush(from)
	sm := sessionMachine{s: sess, m: s.m}
	return s.run(func() (interface{}, error) {
		if cmd.kind == 'r' {
			s.m.mu.RLock()
			defer s.m.mu.RUnlock()
		}
		return cmd.fn(sm, s.ra, args)
	})
}

func (s *service) run(fn func() (interface{}, error)) Receiver {
	start := time.Now()
	v, err := fn()
	return Response(v, time.Since(start), errRaftConvert(s.ra, err))
}

// execRead runs a read command against the shared engine on the leader.
func (s *service) execRead(cmd command, args []string) (interface{}, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	if s.ra.State() != raft.Leader {
		return nil, raft.ErrNotLeader
	}
	return cmd.fn(s.m, s.ra, args)
}

// submit queues a write for runWriteApplier.
func (s *service) submit(args []string, from interface{}) Receiver {
	r := &writeRequestFuture{args: args, s: s, from: from}
	r.wg.Add(1)
	s.m.wrC <- r
	s.pendingMu.Lock()
	s.pending[from] = r
	s.pendingMu.Unlock()
	return r
}

// flush waits for the last write submitted by from.
func (s *service) flush(from interface{}) {
	s.pendingMu.Lock()
	r := s.pending[from]
	s.pendingMu.Unlock()
	if r != nil {
		r.Recv()
	}
}

type simpleResponse struct {
	v    interface{}
	elap time.Duration
	err  error
}

func (r *simpleResponse) Recv() (interface{}, time.Duration, error) {
	return r.v, r.elap, r.err
}

// Response returns a Receiver that is already complete.
func Response(v interface{}, elapsed time.Duration, err error) Receiver {
	return &simpleResponse{v, elapsed, err}
}

// writeRequestFuture is a write waiting for the raft log. runWriteApplier
// fills in the reply and calls wg.Done once the batch holding it is applied.
type writeRequestFuture struct {
	args []string
	resp interface{}
	err  error
	elap time.Duration
	wg   sync.WaitGroup
	s    *service
	from interface{}
}

// Recv waits for the write to be applied.
func (r *writeRequestFuture) Recv() (interface{}, time.Duration, error) {
	r.wg.Wait()
	if r.s != nil {
		r.s.pendingMu.Lock()
		if r.s.pending[r.from] == r {
			delete(r.s.pending, r.from)
		}
		r.s.pendingMu.Unlock()
	}
	return r.resp, r.elap, r.err
}
