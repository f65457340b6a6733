package app

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"
	"github.com/hashicorp/raft"
	"github.com/moontrade/mersenne/twister"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	bytes.Buffer
	canceled bool
	closed   bool
}

func (s *memSink) ID() string    { return "mem" }
func (s *memSink) Cancel() error { s.canceled = true; return nil }
func (s *memSink) Close() error  { s.closed = true; return nil }

var _ raft.SnapshotSink = &memSink{}

func testMachine(t *testing.T, conf Config) *machine {
	conf.def()
	return machineInit(conf, t.TempDir(), nil)
}

func applyCmds(t *testing.T, m *machine, index uint64, cmds ...[]string) []applyResp {
	data := snappy.Encode(nil, encodeBatch(cmds))
	res := m.Apply(&raft.Log{Index: index, Data: data})
	resps, ok := res.([]applyResp)
	require.True(t, ok)
	require.Len(t, resps, len(cmds))
	return resps
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	e := twister.New(0xDEADBEEF)
	for i := 0; i < 700; i++ {
		e.Next()
	}
	state, err := e.MarshalBinary()
	require.NoError(t, err)
	for _, c := range []Codec{CodecNone, CodecSnappy, CodecLZ4, CodecZstd} {
		var buf bytes.Buffer
		require.NoError(t, writeSnapshot(&buf, state, c, 99))
		head, got, err := readSnapshot(&buf)
		require.NoError(t, err, c.String())
		assert.Equal(t, c, head.codec)
		assert.Equal(t, uint64(99), head.appliedIndex)
		assert.Equal(t, uint64(len(state)), head.size)
		var want twister.Engine
		require.NoError(t, want.UnmarshalBinary(state))
		assert.Equal(t, want.State(), got.State())
		assert.Equal(t, want.Next(), got.Next())
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	_, _, err := readSnapshot(bytes.NewReader([]byte("NOTASNAPSHOT____________________")))
	assert.Error(t, err)

	_, _, err = readSnapshot(bytes.NewReader([]byte("SNAP")))
	assert.Error(t, err)

	head := snapHead{codec: CodecNone, size: 16}
	data := append(head.encode(), make([]byte, 16)...)
	_, _, err = readSnapshot(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMachineApply(t *testing.T) {
	m := testMachine(t, Config{})
	resps := applyCmds(t, m, 1,
		[]string{"seed", "42"},
		[]string{"word"},
		[]string{"WORD"},
		[]string{"read", "0"},
	)
	require.NoError(t, resps[0].err)
	ref := twister.New(42)
	require.NoError(t, resps[1].err)
	assert.EqualValues(t, ref.Next(), resps[1].resp)
	assert.EqualValues(t, ref.Next(), resps[2].resp)
	assert.Error(t, resps[3].err)
	assert.Equal(t, uint64(1), m.appliedIndex)
	assert.Equal(t, uint64(1), m.firstIndex)

	applyCmds(t, m, 2, []string{"word"})
	assert.Equal(t, uint64(2), m.appliedIndex)
	assert.Equal(t, uint64(1), m.firstIndex)
	assert.Equal(t, uint64(3), m.engine.Draws())
}

func TestMachineSnapshotRestore(t *testing.T) {
	for _, c := range []Codec{CodecNone, CodecSnappy, CodecLZ4, CodecZstd} {
		conf := Config{}
		conf.SetSnapshotCodec(c)
		m := testMachine(t, conf)
		applyCmds(t, m, 5, []string{"seed", "7"}, []string{"int"},
			[]string{"double"})

		snap, err := m.Snapshot()
		require.NoError(t, err)
		sink := new(memSink)
		require.NoError(t, snap.Persist(sink))
		snap.Release()
		assert.True(t, sink.closed)
		assert.False(t, sink.canceled)

		m2 := testMachine(t, Config{})
		engine := m2.engine
		require.NoError(t, m2.Restore(ioutil.NopCloser(bytes.NewReader(sink.Bytes()))))
		assert.Same(t, engine, m2.engine)
		assert.Equal(t, m.engine.State(), m2.engine.State())

		a := applyCmds(t, m, 6, []string{"word"})
		b := applyCmds(t, m2, 6, []string{"word"})
		assert.Equal(t, a[0].resp, b[0].resp, c.String())
	}
}

func TestDecodeBatchInvalid(t *testing.T) {
	_, err := decodeBatch(nil)
	assert.ErrorIs(t, err, errInvalidApply)

	data := encodeBatch([][]string{{"seed", "12345"}})
	_, err = decodeBatch(data[:len(data)-2])
	assert.ErrorIs(t, err, errInvalidApply)

	cmds, err := decodeBatch(data)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"seed", "12345"}}, cmds)
}

func TestRestoreBackup(t *testing.T) {
	e := twister.New(3)
	e.Next()
	state, err := e.MarshalBinary()
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.snap")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, writeSnapshot(f, state, CodecZstd, 12))
	require.NoError(t, f.Close())

	info, err := readSnapInfo("backup", path)
	require.NoError(t, err)
	assert.Equal(t, "zstd", info["codec"])
	assert.Equal(t, "12", info["applied_index"])
	assert.Equal(t, "0x00000003", info["seed"])
	assert.Equal(t, "1", info["draws"])

	conf := Config{DataDir: filepath.Join(dir, "data"), BackupPath: path}
	conf.def()
	_, rdata, err := dataDirInit(conf)
	require.NoError(t, err)
	require.NotNil(t, rdata)
	m := machineInit(conf, dir, rdata)
	assert.Equal(t, e.Next(), m.engine.Next())

	// existing data directory wins over the backup
	_, rdata, err = dataDirInit(conf)
	require.NoError(t, err)
	assert.Nil(t, rdata)
}

func TestMachineReseed(t *testing.T) {
	m := testMachine(t, Config{})
	resps := applyCmds(t, m, 1,
		[]string{"reseed", "99"},
		[]string{"word"},
		[]string{"reseed", "0x10"},
	)
	require.NoError(t, resps[0].err)
	assert.EqualValues(t, twister.New(99).Next(), resps[1].resp)
	assert.ErrorIs(t, resps[2].err, ErrSyntax)
	assert.Equal(t, uint32(99), m.engine.SeedValue())
}
