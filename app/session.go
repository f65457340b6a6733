package app

import (
	"strings"
	"sync"

	"github.com/moontrade/mersenne/dist"
	"github.com/moontrade/mersenne/stream"
	"github.com/moontrade/mersenne/twister"
	"github.com/tidwall/redcon"
)

// session is the per connection state. A private session owns an engine; a
// shared session draws from the raft machine.
type session struct {
	mu      sync.Mutex
	addr    string
	user    interface{} // context returned by Config.ConnOpened
	private bool
	engine  *twister.Engine
	sampler *dist.Sampler
}

func newSession(addr string, user interface{}, mode Mode, seed uint32) *session {
	s := &session{addr: addr, user: user}
	if mode == Private {
		s.setPrivate(seed)
	}
	return s
}

func (s *session) setPrivate(seed uint32) {
	s.private = true
	s.engine = twister.New(seed)
	s.sampler = dist.New(stream.NewEngineSource(s.engine))
}

func (s *session) setShared() {
	s.private = false
	s.engine = nil
	s.sampler = nil
}

func (s *session) mode() Mode {
	if s.private {
		return Private
	}
	return Shared
}

// SESSION [PRIVATE [seed] | SHARED]
// help: returns or changes which engine the connection draws from. A new
//       private session starts a fresh engine seeded with seed, or with the
//       server seed when omitted.
func cmdSESSION(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	m := getBaseMachine(um)
	s, ok := um.Context().(*session)
	if m == nil || !ok {
		return nil, ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(args) == 1 {
		return s.mode().String(), nil
	}
	switch strings.ToLower(args[1]) {
	case "private":
		seed := m.seed
		switch len(args) {
		case 2:
		case 3:
			var err error
			if seed, err = ParseSeed(args[2]); err != nil {
				return nil, err
			}
		default:
			return nil, ErrWrongNumArgs
		}
		s.setPrivate(seed)
	case "shared":
		if len(args) != 2 {
			return nil, ErrWrongNumArgs
		}
		s.setShared()
	default:
		return nil, ErrSyntax
	}
	return redcon.SimpleString("OK"), nil
}
