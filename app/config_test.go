package app

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/moontrade/mersenne/twister"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var conf Config
	conf.def()
	assert.Equal(t, "mersenned", conf.Name)
	assert.Equal(t, "127.0.0.1:11001", conf.Addr)
	assert.Equal(t, uint32(twister.DefaultSeed), conf.Seed)
	assert.Equal(t, Private, conf.Mode)
	assert.Equal(t, CodecSnappy, conf.SnapshotCodec)
	assert.Equal(t, 2*time.Second, conf.RaftTimeout)

	conf = Config{}
	conf.SetSeed(0)
	conf.SetSnapshotCodec(CodecNone)
	conf.def()
	assert.Equal(t, uint32(0), conf.Seed)
	assert.Equal(t, CodecNone, conf.SnapshotCodec)
}

func TestParseSeed(t *testing.T) {
	for s, want := range map[string]uint32{
		"0":          0,
		"42":         42,
		"0xDEADBEEF": 0xDEADBEEF,
		"0xdeadbeef": 0xDEADBEEF,
		"4294967295": 0xFFFFFFFF,
	} {
		v, err := ParseSeed(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, v, s)
	}
	for _, s := range []string{"", "-1", "4294967296", "0x1FFFFFFFF", "seed"} {
		_, err := ParseSeed(s)
		assert.ErrorIs(t, err, ErrSyntax, s)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("private")
	require.NoError(t, err)
	assert.Equal(t, Private, m)
	m, err = ParseMode("SHARED")
	require.NoError(t, err)
	assert.Equal(t, Shared, m)
	assert.Equal(t, "shared", m.String())
	_, err = ParseMode("public")
	assert.Error(t, err)
}

func TestConfigPathFromArgs(t *testing.T) {
	assert.Equal(t, "a.json", configPathFromArgs([]string{"--config", "a.json"}))
	assert.Equal(t, "b.json", configPathFromArgs([]string{"-n", "2", "-config=b.json"}))
	assert.Equal(t, "", configPathFromArgs([]string{"-n", "2"}))
	assert.Equal(t, "", configPathFromArgs([]string{"--config"}))
}

func writeConfigFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "mersenned.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0666))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"name": "rng",
		"addr": ":7000",
		"node_id": "3",
		"log_level": "warn",
		"seed": "0x0000002A",
		"mode": "shared",
		"snapshot_codec": "lz4",
		"reseed": "1m",
		"raft_timeout": "500ms",
		"max_pool": 4,
		"try_errors": true
	}`)
	var conf Config
	require.NoError(t, loadConfigFile(&conf, path))
	assert.Equal(t, "rng", conf.Name)
	assert.Equal(t, ":7000", conf.Addr)
	assert.Equal(t, "3", conf.NodeID)
	assert.Equal(t, "warn", conf.LogLevel)
	assert.Equal(t, uint32(42), conf.Seed)
	assert.Equal(t, Shared, conf.Mode)
	assert.Equal(t, CodecLZ4, conf.SnapshotCodec)
	assert.Equal(t, time.Minute, conf.ReseedInterval)
	assert.Equal(t, 500*time.Millisecond, conf.RaftTimeout)
	assert.Equal(t, 4, conf.MaxPool)
	assert.True(t, conf.TryErrors)

	conf.def()
	assert.Equal(t, uint32(42), conf.Seed)
	assert.Equal(t, CodecLZ4, conf.SnapshotCodec)

	path = writeConfigFile(t, `{"seed": 0, "snapshot_codec": "none"}`)
	conf = Config{}
	require.NoError(t, loadConfigFile(&conf, path))
	conf.def()
	assert.Equal(t, uint32(0), conf.Seed)
	assert.Equal(t, CodecNone, conf.SnapshotCodec)
}

func TestLoadConfigFileErrors(t *testing.T) {
	for _, body := range []string{
		`{"seed": "nope"}`,
		`{"mode": "public"}`,
		`{"snapshot_codec": "gzip"}`,
		`{"reseed": "often"}`,
		`{"colour": "blue"}`,
		`{"name": `,
	} {
		var conf Config
		assert.Error(t, loadConfigFile(&conf, writeConfigFile(t, body)), body)
	}
	var conf Config
	assert.Error(t, loadConfigFile(&conf, filepath.Join(t.TempDir(), "missing.json")))
}

func TestConfigValidate(t *testing.T) {
	valid := []Config{
		{},
		{TLSCertPath: "c.pem", TLSKeyPath: "k.pem"},
		{BackupPath: "backup.snap"},
		{ReseedInterval: time.Second},
	}
	for _, conf := range valid {
		assert.NoError(t, conf.validate())
	}
	invalid := []Config{
		{TLSCertPath: "c.pem"},
		{TLSKeyPath: "k.pem"},
		{BackupPath: "backup.snap", JoinAddr: "10.0.0.1:7000"},
		{ReseedInterval: -time.Second},
	}
	for _, conf := range invalid {
		assert.Error(t, conf.validate())
	}
}
