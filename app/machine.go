package app

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/hashicorp/raft"
	"github.com/moontrade/mersenne/dist"
	"github.com/moontrade/mersenne/logger"
	"github.com/moontrade/mersenne/stream"
	"github.com/moontrade/mersenne/twister"
)

func machineInit(conf Config, dir string, rdata *restoreData) *machine {
	m := new(machine)
	m.dir = dir
	m.vers = versline(conf)
	m.created = time.Now().UnixNano()
	m.wrC = make(chan *writeRequestFuture, 1024)
	m.seed = conf.Seed
	m.mode = conf.Mode
	m.codec = conf.SnapshotCodec
	m.engine = twister.New(conf.Seed)
	if rdata != nil {
		m.engine = rdata.engine
	}
	m.sampler = dist.New(stream.NewEngineSource(m.engine))
	m.connClosed = conf.ConnClosed
	m.connOpened = conf.ConnOpened
	m.commands = map[string]command{
		"barrier":   {'w', cmdBARRIER},
		"reseed":    {'w', cmdRESEED},
		"raft":      {'s', cmdRAFT},
		"version":   {'s', cmdVERSION},
		"session":   {'s', cmdSESSION},
		"monitor":   {'s', cmdMONITOR},
		"engine":    {'r', cmdENGINE},
		"seed":      {'d', cmdSEED},
		"read":      {'d', cmdREAD},
		"word":      {'d', cmdWORD},
		"int":       {'d', cmdINT},
		"float":     {'d', cmdFLOAT},
		"double":    {'d', cmdDOUBLE},
		"coinflip":  {'d', cmdCOINFLIP},
		"gaussian":  {'d', cmdGAUSSIAN},
		"chisquare": {'d', cmdCHISQUARE},
		"summary":   {'d', cmdSUMMARY},
	}
	return m
}

// The Machine interface is passed to every command.
//
// Engine and Sampler are available to draw and read commands. For a
// connection in a private session they are the connection's own engine; for
// everything else they are the shared engine held by the raft machine, which
// write commands may advance and read commands must only inspect.
// Context is only available to system commands.
type Machine interface {
	// Engine returns the engine the command runs against, or nil for system
	// commands.
	Engine() *twister.Engine
	// Sampler draws distribution samples from Engine.
	Sampler() *dist.Sampler
	// Context returns the connection session. Only available for system
	// commands.
	Context() interface{}
}

type machine struct {
	connOpened func(addr string) (context interface{}, accept bool)
	connClosed func(context interface{}, addr string)
	snaps      raft.SnapshotStore // file snapshots
	dir        string             // data directory
	vers       string             // version line
	created    int64              // machine instance created timestamp
	commands   map[string]command // command table
	seed       uint32             // seed for new private sessions
	mode       Mode               // mode for new connections
	codec      Codec              // snapshot codec

	mu           sync.RWMutex    // protect all things in group
	firstIndex   uint64          // first applied index
	appliedIndex uint64          // last applied index (stable state)
	snap         bool            // snapshot in progress
	engine       *twister.Engine // !! PERSISTED !! shared engine
	sampler      *dist.Sampler   // over engine

	wrC chan *writeRequestFuture
}

var _ Machine = &machine{}

type applyResp struct {
	resp interface{}
	elap time.Duration
	err  error
}

func (m *machine) Engine() *twister.Engine { return m.engine }
func (m *machine) Sampler() *dist.Sampler  { return m.sampler }
func (m *machine) Context() interface{}    { return nil }

func (m *machine) Apply(l *raft.Log) interface{} {
	packet, err := snappy.Decode(nil, l.Data)
	if err != nil {
		logger.Panic(err)
	}
	m.mu.Lock()
	defer func() {
		m.appliedIndex = l.Index
		if m.firstIndex == 0 {
			m.firstIndex = m.appliedIndex
		}
		m.mu.Unlock()
	}()
	args, err := decodeBatch(packet)
	if err != nil {
		logger.Panic(err)
	}
	resps := make([]applyResp, len(args))
	for i, args := range args {
		if len(args) == 0 {
			continue
		}
		cmdName := strings.ToLower(args[0])
		cmd := m.commands[cmdName]
		if cmd.kind != 'w' && cmd.kind != 'd' {
			logger.Panic(fmt.Errorf("invalid apply '%c', command: '%s'",
				cmd.kind, cmdName))
		}
		start := time.Now()
		res, err := cmd.fn(m, nil, args)
		resps[i] = applyResp{res, time.Since(start), err}
	}
	return resps
}

// encodeBatch frames a list of commands using the following binary format:
// (count, cmd...)
//   - count: uvarint
//   - cmd: (count, args...)
//     - count: uvarint
//     - arg: (count, byte...)
//       - count: uvarint
func encodeBatch(cmds [][]string) []byte {
	var data []byte
	data = appendUvarint(data, uint64(len(cmds)))
	for _, args := range cmds {
		data = appendUvarint(data, uint64(len(args)))
		for _, arg := range args {
			data = appendUvarint(data, uint64(len(arg)))
			data = append(data, arg...)
		}
	}
	return data
}

func appendUvarint(dst []byte, x uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], x)
	return append(dst, buf[:n]...)
}

var errInvalidApply = errors.New("invalid apply")

func decodeBatch(packet []byte) ([][]string, error) {
	numReqs, n := binary.Uvarint(packet)
	if n <= 0 {
		return nil, errInvalidApply
	}
	packet = packet[n:]
	cmds := make([][]string, numReqs)
	for i := range cmds {
		numArgs, n := binary.Uvarint(packet)
		if n <= 0 {
			return nil, errInvalidApply
		}
		packet = packet[n:]
		args := make([]string, numArgs)
		for j := range args {
			argLen, n := binary.Uvarint(packet)
			if n <= 0 || uint64(len(packet)-n) < argLen {
				return nil, errInvalidApply
			}
			packet = packet[n:]
			args[j] = string(packet[:argLen])
			packet = packet[argLen:]
		}
		cmds[i] = args
	}
	return cmds, nil
}

// intermediateMachine wraps the machine in a connection context
type intermediateMachine struct {
	context interface{}
	m       *machine
}

var _ Machine = intermediateMachine{}

func (m intermediateMachine) Engine() *twister.Engine { return nil }
func (m intermediateMachine) Sampler() *dist.Sampler  { return nil }
func (m intermediateMachine) Context() interface{}    { return m.context }

// sessionMachine runs draw and read commands against a private session.
type sessionMachine struct {
	s *session
	m *machine
}

var _ Machine = sessionMachine{}

func (m sessionMachine) Engine() *twister.Engine { return m.s.engine }
func (m sessionMachine) Sampler() *dist.Sampler  { return m.s.sampler }
func (m sessionMachine) Context() interface{}    { return m.s }

func getBaseMachine(m Machine) *machine {
	switch m := m.(type) {
	case intermediateMachine:
		return m.m
	case sessionMachine:
		return m.m
	case *machine:
		return m
	default:
		return nil
	}
}
