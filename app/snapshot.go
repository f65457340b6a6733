package app

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/moontrade/mersenne/logger"
	"github.com/moontrade/mersenne/twister"
)

func snapshotInit(dir string, m *machine, hclogger hclog.Logger) (raft.SnapshotStore, error) {
	snaps, err := raft.NewFileSnapshotStoreWithLogger(dir, 3, hclogger)
	if err != nil {
		return nil, err
	}
	m.snaps = snaps
	return snaps, nil
}

// Snapshot files start with a 32 byte header:
//   - magic "SNAP0002"
//   - codec byte, then 7 reserved bytes
//   - applied index: uint64
//   - decoded payload size: uint64
// followed by the codec encoded engine state.
const (
	snapMagic    = "SNAP0002"
	snapHeadSize = 32
)

type snapHead struct {
	codec        Codec
	appliedIndex uint64
	size         uint64
}

func (h snapHead) encode() []byte {
	head := make([]byte, snapHeadSize)
	copy(head, snapMagic)
	head[8] = byte(h.codec)
	binary.LittleEndian.PutUint64(head[16:], h.appliedIndex)
	binary.LittleEndian.PutUint64(head[24:], h.size)
	return head
}

func readSnapHead(r io.Reader) (h snapHead, err error) {
	var head [snapHeadSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return h, err
	}
	if string(head[:8]) != snapMagic {
		return h, errors.New("invalid snapshot signature")
	}
	h.codec = Codec(head[8])
	h.appliedIndex = binary.LittleEndian.Uint64(head[16:])
	h.size = binary.LittleEndian.Uint64(head[24:])
	return h, nil
}

// writeSnapshot writes an encoded engine state to w.
func writeSnapshot(w io.Writer, state []byte, codec Codec, appliedIndex uint64) error {
	body, err := codec.Encode(state)
	if err != nil {
		return err
	}
	head := snapHead{codec: codec, appliedIndex: appliedIndex,
		size: uint64(len(state))}
	if _, err := w.Write(head.encode()); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readSnapshot decodes a snapshot written by writeSnapshot.
func readSnapshot(r io.Reader) (snapHead, *twister.Engine, error) {
	head, err := readSnapHead(r)
	if err != nil {
		return head, nil, err
	}
	body, err := ioutil.ReadAll(r)
	if err != nil {
		return head, nil, err
	}
	state, err := head.codec.Decode(body, int(head.size))
	if err != nil {
		return head, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	e := new(twister.Engine)
	if err := e.UnmarshalBinary(state); err != nil {
		return head, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return head, e, nil
}

type fsmSnap struct {
	state        []byte
	codec        Codec
	appliedIndex uint64
}

func (s *fsmSnap) Persist(sink raft.SnapshotSink) error {
	if err := writeSnapshot(sink, s.state, s.codec, s.appliedIndex); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnap) Release() {}

func (m *machine) Snapshot() (raft.FSMSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, err := m.engine.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &fsmSnap{
		state:        state,
		codec:        m.codec,
		appliedIndex: m.appliedIndex,
	}, nil
}

func (m *machine) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	_, e, err := readSnapshot(rc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// keep the engine pointer stable for the sampler
	return m.engine.Restore(e.State())
}

type restoreData struct {
	engine *twister.Engine
}

func dataDirInit(conf Config) (string, *restoreData, error) {
	var rdata *restoreData
	dir := filepath.Join(conf.DataDir, conf.Name, conf.NodeID)
	if conf.BackupPath != "" {
		_, err := os.Stat(dir)
		if err == nil {
			logger.Warn("backup restore ignored: "+
				"data directory already exists: path=%s", dir)
			return dir, nil, nil
		}
		logger.Print("restoring backup: path=%s", conf.BackupPath)
		if !os.IsNotExist(err) {
			return "", nil, err
		}
		rdata, err = dataDirRestoreBackup(conf)
		if err != nil {
			return "", nil, err
		}
		logger.Print("recovery successful")
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		return "", nil, err
	}
	if conf.DataDirReady != nil {
		conf.DataDirReady(dir)
	}
	return dir, rdata, nil
}

func dataDirRestoreBackup(conf Config) (*restoreData, error) {
	f, err := os.Open(conf.BackupPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, e, err := readSnapshot(f)
	if err != nil {
		return nil, err
	}
	return &restoreData{engine: e}, nil
}

// snapPath is where the file snapshot store keeps the state of snapshot id.
func snapPath(dir, id string) string {
	return filepath.Join(dir, "snapshots", id, "state.bin")
}

func readSnapInfo(id, path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	head, e, err := readSnapshot(f)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"id":            id,
		"size":          fmt.Sprint(fi.Size()),
		"codec":         head.codec.String(),
		"applied_index": fmt.Sprint(head.appliedIndex),
		"seed":          fmt.Sprintf("0x%08X", e.SeedValue()),
		"draws":         fmt.Sprint(e.Draws()),
	}, nil
}
