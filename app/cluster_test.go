package app

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/moontrade/mersenne/client"
	"github.com/moontrade/mersenne/twister"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineState(t *testing.T, n *Node) []byte {
	n.m.mu.RLock()
	defer n.m.mu.RUnlock()
	data, err := n.m.engine.MarshalBinary()
	require.NoError(t, err)
	return data
}

func serverList(t *testing.T, n *Node) []map[string]string {
	c := dialTestNode(t, n)
	vals, err := redis.Values(c.Do("raft", "server", "list"))
	require.NoError(t, err)
	var list []map[string]string
	for _, v := range vals {
		m, err := redis.StringMap(v, nil)
		require.NoError(t, err)
		list = append(list, m)
	}
	return list
}

func TestRaftCommands(t *testing.T) {
	n := openTestNode(t, Config{Mode: Shared})
	c := dialTestNode(t, n)

	help, err := redis.Strings(c.Do("raft", "help"))
	require.NoError(t, err)
	assert.Contains(t, help, "RAFT LEADER")
	assert.Contains(t, help, "RAFT SNAPSHOT NOW")

	leader, err := redis.String(c.Do("raft", "leader"))
	require.NoError(t, err)
	assert.Equal(t, n.Addr(), leader)

	require.NoError(t, c.Seed(3))
	for i := 0; i < 4; i++ {
		_, err := c.Word()
		require.NoError(t, err)
	}
	info, err := redis.StringMap(c.Do("raft", "info", "engine_*"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"engine_seed":          "0x00000003",
		"engine_draws":         "4",
		"engine_regenerations": "1",
	}, info)
	info, err = redis.StringMap(c.Do("raft", "info"))
	require.NoError(t, err)
	assert.Equal(t, "Leader", info["state"])
	assert.NotEmpty(t, info["applied_index"])

	list := serverList(t, n)
	require.Len(t, list, 1)
	assert.Equal(t, "1", list[0]["id"])
	assert.Equal(t, n.Addr(), list[0]["address"])
	assert.Equal(t, "true", list[0]["leader"])

	_, err = c.Do("raft", "bogus")
	assert.EqualError(t, err, "ERR unknown raft command 'raft bogus', try RAFT HELP")
	_, err = c.Do("raft")
	assert.Error(t, err)
	_, err = c.Do("raft", "server", "add", "9")
	assert.EqualError(t, err, "ERR "+errWrongNumArgsRaft.Error())
}

func TestSystemCommands(t *testing.T) {
	n := openTestNode(t, Config{Name: "mersenned", Version: "1.2.3"})
	c := dialTestNode(t, n)

	vers, err := redis.String(c.Do("version"))
	require.NoError(t, err)
	assert.Contains(t, vers, "1.2.3")

	ok, err := redis.String(c.Do("barrier"))
	require.NoError(t, err)
	assert.Equal(t, "OK", ok)
	_, err = c.Do("barrier", "x")
	assert.Error(t, err)

	pong, err := redis.String(c.Do("ping"))
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)
	echo, err := redis.String(c.Do("echo", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", echo)

	_, err = c.Word()
	require.NoError(t, err)
	info, err := redis.StringMap(c.Do("engine", "info", "d*"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"draws": "1"}, info)
	js, err := redis.Bytes(c.Do("engine", "json"))
	require.NoError(t, err)
	assert.Contains(t, string(js), `"mode":"private"`)
	assert.Contains(t, string(js), `"draws":1`)
	help, err := redis.Strings(c.Do("engine", "help"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ENGINE INFO [pattern]", "ENGINE JSON"}, help)
	_, err = c.Do("engine", "nope")
	assert.Error(t, err)
}

func TestAuth(t *testing.T) {
	n := openTestNode(t, Config{Auth: "secret"})
	c := dialTestNode(t, n)
	_, err := c.Word()
	assert.EqualError(t, err, "ERR unauthorized")
	_, err = c.Do("auth", "wrong")
	assert.Error(t, err)
	ok, err := redis.String(c.Do("auth", "secret"))
	require.NoError(t, err)
	assert.Equal(t, "OK", ok)
	w, err := c.Word()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x39037a7d), w)
}

func TestRaftSnapshots(t *testing.T) {
	n := openTestNode(t, Config{Mode: Shared, SnapshotCodec: CodecZstd})
	c := dialTestNode(t, n)

	require.NoError(t, c.Seed(11))
	_, err := c.Bytes(100)
	require.NoError(t, err)
	first, err := redis.StringMap(c.Do("raft", "snapshot", "now"))
	require.NoError(t, err)
	assert.Equal(t, "zstd", first["codec"])
	assert.Equal(t, "0x0000000B", first["seed"])
	assert.Equal(t, "25", first["draws"])

	_, err = c.Word()
	require.NoError(t, err)
	second, err := redis.StringMap(c.Do("raft", "snapshot", "now"))
	require.NoError(t, err)
	assert.Equal(t, "26", second["draws"])
	assert.NotEqual(t, first["id"], second["id"])

	vals, err := redis.Values(c.Do("raft", "snapshot", "list"))
	require.NoError(t, err)
	ids := make(map[string]string)
	for _, v := range vals {
		m, err := redis.StringMap(v, nil)
		require.NoError(t, err)
		ids[m["id"]] = m["draws"]
	}
	assert.Equal(t, map[string]string{first["id"]: "25", second["id"]: "26"}, ids)

	data, err := redis.Bytes(c.Do("raft", "snapshot", "read", second["id"]))
	require.NoError(t, err)
	assert.Equal(t, second["size"], fmt.Sprint(len(data)))
	head, e, err := readSnapshot(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, head.codec)
	ref := twister.New(11)
	for i := 0; i < 26; i++ {
		ref.Next()
	}
	assert.Equal(t, ref.State(), e.State())

	part, err := redis.Bytes(c.Do("raft", "snapshot", "read", second["id"], 8, 16))
	require.NoError(t, err)
	assert.Equal(t, data[8:24], part)

	_, err = c.Do("raft", "snapshot", "read", "../../etc")
	assert.Error(t, err)
	_, err = c.Do("raft", "snapshot", "read", second["id"], -1, 4)
	assert.Error(t, err)
	_, err = c.Do("raft", "snapshot", "read", "missing")
	assert.Error(t, err)
}

func TestClusterJoin(t *testing.T) {
	a := openTestNode(t, Config{Mode: Shared})
	b := startTestNode(t, Config{Mode: Shared, NodeID: "2", JoinAddr: a.Addr()})

	list := serverList(t, a)
	require.Len(t, list, 2)
	ids := map[string]string{}
	for _, s := range list {
		ids[s["id"]] = s["leader"]
	}
	assert.Equal(t, map[string]string{"1": "true", "2": "false"}, ids)

	ca := dialTestNode(t, a)
	cb := dialTestNode(t, b)

	leader, err := redis.String(cb.Do("raft", "leader"))
	require.NoError(t, err)
	assert.Equal(t, a.Addr(), leader)

	// draws on a follower are redirected to the leader
	_, err = cb.Word()
	assert.EqualError(t, err, "MOVED 0 "+a.Addr())
	_, err = cb.Do("engine", "info")
	assert.EqualError(t, err, "MOVED 0 "+a.Addr())

	require.NoError(t, ca.Seed(9))
	ref := twister.New(9)
	for i := 0; i < 5; i++ {
		w, err := ca.Word()
		require.NoError(t, err)
		assert.Equal(t, ref.Next(), w)
	}

	// the follower applies the same log to its own copy of the engine
	want := engineState(t, a)
	require.Eventually(t, func() bool {
		return bytes.Equal(want, engineState(t, b))
	}, 5*time.Second, 10*time.Millisecond)

	// private sessions stay local on followers
	require.NoError(t, cb.Private(9))
	w, err := cb.Word()
	require.NoError(t, err)
	assert.Equal(t, twister.New(9).Next(), w)

	ok, err := redis.String(ca.Do("raft", "server", "remove", "2"))
	require.NoError(t, err)
	assert.Equal(t, "OK", ok)
	assert.Len(t, serverList(t, a), 1)
}

func TestReseeder(t *testing.T) {
	n := openTestNode(t, Config{Mode: Shared,
		ReseedInterval: 20 * time.Millisecond})
	c := dialTestNode(t, n)
	require.Eventually(t, func() bool {
		info, err := redis.StringMap(c.Do("raft", "info", "engine_seed"))
		return err == nil && info["engine_seed"] != "0xDEADBEEF"
	}, 5*time.Second, 10*time.Millisecond)

	// a reseed is a regular log entry that later draws follow
	info, err := redis.StringMap(c.Do("engine", "info", "seed"))
	require.NoError(t, err)
	var seed uint32
	_, err = fmt.Sscanf(info["seed"], "0x%08X", &seed)
	require.NoError(t, err)
	assert.NotEqual(t, twister.DefaultSeed, seed)
}

func TestMonitorStream(t *testing.T) {
	n := openTestNode(t, Config{})
	mc, err := client.RedisDial(n.Addr(), "", nil,
		redis.DialReadTimeout(5*time.Second))
	require.NoError(t, err)
	defer mc.Close()
	ok, err := redis.String(mc.Do("monitor"))
	require.NoError(t, err)
	assert.Equal(t, "OK", ok)

	c := dialTestNode(t, n)
	_, err = c.Gaussian(12)
	require.NoError(t, err)
	line, err := redis.String(mc.Receive())
	require.NoError(t, err)
	assert.Contains(t, line, `"gaussian" "12"`)
}
