package app

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/raft"
	"github.com/tidwall/match"
	"github.com/tidwall/redcon"
)

type command struct {
	kind byte // 's' system, 'r' read, 'w' write, 'd' draw
	fn   func(m Machine, ra *raftWrap, args []string) (interface{}, error)
}

// BARRIER
// help: a noop written to the raft log. Succeeds only on a working leader.
func cmdBARRIER(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	return redcon.SimpleString("OK"), nil
}

// VERSION
// help: returns the server version line; string
func cmdVERSION(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	return getBaseMachine(um).vers, nil
}

type raftCommand func(m *machine, ra *raftWrap, args []string) (interface{}, error)

var raftCommands = map[string]raftCommand{
	"help":     raftHELP,
	"leader":   raftLEADER,
	"info":     raftINFO,
	"server":   raftSERVER,
	"snapshot": raftSNAPSHOT,
}

var raftHelp = []redcon.SimpleString{
	"RAFT LEADER",
	"RAFT INFO [pattern]",
	"RAFT SERVER LIST",
	"RAFT SERVER ADD id address",
	"RAFT SERVER REMOVE id",
	"RAFT SNAPSHOT NOW",
	"RAFT SNAPSHOT LIST",
	"RAFT SNAPSHOT READ id [offset count]",
}

// RAFT subcommand args...
// help: cluster membership, status and snapshots. See RAFT HELP.
func cmdRAFT(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	m := getBaseMachine(um)
	if m == nil {
		return nil, ErrInvalid
	}
	if len(args) < 2 {
		return nil, errWrongNumArgsRaft
	}
	fn, ok := raftCommands[strings.ToLower(args[1])]
	if !ok {
		return nil, errUnknownRaftCommand(args[:2])
	}
	return fn(m, ra, args)
}

func raftHELP(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongNumArgsRaft
	}
	return raftHelp, nil
}

// RAFT LEADER
// help: returns the leader address, or an empty string; string
func raftLEADER(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongNumArgsRaft
	}
	return ra.leaderAddr(), nil
}

// RAFT INFO [pattern]
// help: returns raft statistics and the shared engine position; map
func raftINFO(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	pattern := "*"
	switch len(args) {
	case 2:
	case 3:
		pattern = args[2]
	default:
		return nil, errWrongNumArgsRaft
	}
	stats := ra.Stats()
	m.mu.RLock()
	stats["applied_index"] = strconv.FormatUint(m.appliedIndex, 10)
	stats["first_index"] = strconv.FormatUint(m.firstIndex, 10)
	stats["engine_seed"] = fmt.Sprintf("0x%08X", m.engine.SeedValue())
	stats["engine_draws"] = strconv.FormatUint(m.engine.Draws(), 10)
	stats["engine_regenerations"] =
		strconv.FormatUint(m.engine.Regenerations(), 10)
	m.mu.RUnlock()
	info := make(map[string]string)
	for k, v := range stats {
		if match.Match(k, pattern) {
			info[k] = v
		}
	}
	return info, nil
}

// RAFT SERVER LIST | ADD id address | REMOVE id
// help: lists or changes the voters of the cluster
func raftSERVER(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) < 3 {
		return nil, errWrongNumArgsRaft
	}
	var f raft.Future
	switch sub := strings.ToLower(args[2]); {
	case sub == "list" && len(args) == 3:
		return raftServerList(ra)
	case sub == "add" && len(args) == 5:
		f = ra.AddVoter(raft.ServerID(args[3]), raft.ServerAddress(args[4]),
			0, 0)
	case sub == "remove" && len(args) == 4:
		f = ra.RemoveServer(raft.ServerID(args[3]), 0, 0)
	case sub == "list" || sub == "add" || sub == "remove":
		return nil, errWrongNumArgsRaft
	default:
		return nil, errUnknownRaftCommand(args[1:3])
	}
	if err := f.Error(); err != nil {
		return nil, err
	}
	return redcon.SimpleString("OK"), nil
}

func raftServerList(ra *raftWrap) (interface{}, error) {
	f := ra.GetConfiguration()
	if err := f.Error(); err != nil {
		return nil, err
	}
	leader := ra.leaderAddr()
	var list []map[string]string
	for _, s := range f.Configuration().Servers {
		list = append(list, map[string]string{
			"id":       string(s.ID),
			"address":  string(s.Address),
			"suffrage": s.Suffrage.String(),
			"leader":   strconv.FormatBool(string(s.Address) == leader),
		})
	}
	return list, nil
}

// RAFT SNAPSHOT NOW | LIST | READ id [offset count]
// help: takes, lists or reads file snapshots of the shared engine
func raftSNAPSHOT(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) < 3 {
		return nil, errWrongNumArgsRaft
	}
	switch strings.ToLower(args[2]) {
	case "now":
		if len(args) != 3 {
			return nil, errWrongNumArgsRaft
		}
		return snapshotNow(m, ra)
	case "list":
		if len(args) != 3 {
			return nil, errWrongNumArgsRaft
		}
		return snapshotList(m)
	case "read":
		return snapshotRead(m, args[3:])
	}
	return nil, errUnknownRaftCommand(args[1:3])
}

var errSnapshotInProgress = errors.New("snapshot in progress")

func snapshotNow(m *machine, ra *raftWrap) (interface{}, error) {
	m.mu.Lock()
	busy := m.snap
	m.snap = true
	m.mu.Unlock()
	if busy {
		return nil, errSnapshotInProgress
	}
	defer func() {
		m.mu.Lock()
		m.snap = false
		m.mu.Unlock()
	}()
	f := ra.Snapshot()
	if err := f.Error(); err != nil {
		return nil, err
	}
	meta, rd, err := f.Open()
	if err != nil {
		return nil, err
	}
	rd.Close()
	return readSnapInfo(meta.ID, snapPath(m.dir, meta.ID))
}

func snapshotList(m *machine) (interface{}, error) {
	metas, err := m.snaps.List()
	if err != nil {
		return nil, err
	}
	list := make([]map[string]string, 0, len(metas))
	for _, meta := range metas {
		info, err := readSnapInfo(meta.ID, snapPath(m.dir, meta.ID))
		if err != nil {
			return nil, err
		}
		list = append(list, info)
	}
	return list, nil
}

// snapshotRead returns the snapshot file bytes, or count bytes from offset.
// The result can be fed to --restore.
func snapshotRead(m *machine, args []string) (interface{}, error) {
	if len(args) != 1 && len(args) != 3 {
		return nil, errWrongNumArgsRaft
	}
	id := args[0]
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return nil, ErrInvalid
	}
	f, err := os.Open(snapPath(m.dir, id))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if len(args) == 1 {
		return ioutil.ReadAll(f)
	}
	offset, err1 := strconv.ParseInt(args[1], 10, 64)
	count, err2 := strconv.ParseInt(args[2], 10, 64)
	if err1 != nil || err2 != nil || offset < 0 || count <= 0 {
		return nil, ErrSyntax
	}
	return ioutil.ReadAll(io.NewSectionReader(f, offset, count))
}
