package app

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/moontrade/mersenne/client"
	"github.com/moontrade/mersenne/logger"
)

// joinAttempts bounds how many MOVED redirects a join follows.
const joinAttempts = 10

// raftWrap is the raft instance together with how its errors are reported to
// clients.
type raftWrap struct {
	*raft.Raft
	tryErrors bool
}

func raftConfig(conf Config, hclogger hclog.Logger) *raft.Config {
	rc := raft.DefaultConfig()
	rc.LocalID = raft.ServerID(conf.NodeID)
	rc.Logger = hclogger
	rc.HeartbeatTimeout = conf.RaftTimeout
	rc.ElectionTimeout = conf.RaftTimeout
	rc.LeaderLeaseTimeout = conf.RaftTimeout / 2
	rc.CommitTimeout = conf.RaftTimeout / 10
	rc.MaxAppendEntries = maxBatch
	rc.ShutdownOnRemove = true
	// engine state is a few kilobytes; snapshot often, keep a short tail
	rc.SnapshotThreshold = 1024
	rc.TrailingLogs = 1024
	return rc
}

func raftInit(conf Config, hclogger hclog.Logger, fsm raft.FSM,
	logs raft.LogStore, stable raft.StableStore, snaps raft.SnapshotStore,
	trans raft.Transport,
) (*raftWrap, error) {
	rc := raftConfig(conf, hclogger)
	if err := raft.ValidateConfig(rc); err != nil {
		return nil, err
	}
	r, err := raft.NewRaft(rc, fsm, logs, stable, snaps, trans)
	if err != nil {
		return nil, err
	}
	return &raftWrap{Raft: r, tryErrors: conf.TryErrors}, nil
}

func (ra *raftWrap) leaderAddr() string {
	return string(ra.Leader())
}

// errRaftConvert turns leadership and shutdown errors into redirect codes a
// redis cluster client understands: MOVED (or TRY) with the leader address,
// CLUSTERDOWN when there is no leader to send the client to.
func errRaftConvert(ra *raftWrap, err error) error {
	if err == nil || ra == nil {
		return err
	}
	switch err {
	case raft.ErrNotLeader, raft.ErrLeadershipLost,
		raft.ErrLeadershipTransferInProgress:
		leader := ra.leaderAddr()
		if leader == "" {
			return fmt.Errorf("CLUSTERDOWN %s", err)
		}
		if ra.tryErrors {
			return fmt.Errorf("TRY %s", leader)
		}
		return fmt.Errorf("MOVED 0 %s", leader)
	case raft.ErrRaftShutdown, raft.ErrTransportShutdown:
		return fmt.Errorf("CLUSTERDOWN %s", err)
	}
	return err
}

// clusterInit bootstraps a single server cluster, or joins the cluster at
// conf.JoinAddr. A server that already has a raft configuration is left as
// it is.
func clusterInit(conf Config, ra *raftWrap, addr string, tlscfg *tls.Config) error {
	f := ra.GetConfiguration()
	if err := f.Error(); err != nil {
		return fmt.Errorf("raft configuration: %w", err)
	}
	if len(f.Configuration().Servers) > 0 {
		if conf.JoinAddr != "" {
			logger.Warn("join ignored: server already belongs to a cluster")
		}
		return nil
	}
	if conf.JoinAddr == "" {
		logger.Notice("bootstrapping new cluster")
		err := ra.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{
				Suffrage: raft.Voter,
				ID:       raft.ServerID(conf.NodeID),
				Address:  raft.ServerAddress(addr),
			}},
		}).Error()
		if err != nil && err != raft.ErrCantBootstrap {
			return fmt.Errorf("bootstrap: %w", err)
		}
		return nil
	}
	logger.Notice("joining cluster at %s", conf.JoinAddr)
	if err := joinCluster(conf, addr, tlscfg); err != nil {
		return fmt.Errorf("join %s: %w", conf.JoinAddr, err)
	}
	return nil
}

// joinCluster asks the cluster to add this server as a voter, following
// MOVED redirects to the leader.
func joinCluster(conf Config, addr string, tlscfg *tls.Config) error {
	target := conf.JoinAddr
	for i := 0; i < joinAttempts; i++ {
		c, err := client.Dial(target, client.WithAuth(conf.Auth),
			client.WithTLS(tlscfg), client.WithTimeout(10*conf.RaftTimeout))
		if err != nil {
			return err
		}
		_, err = redis.String(c.Do("raft", "server", "add", conf.NodeID, addr))
		c.Close()
		if err == nil {
			return nil
		}
		parts := strings.Fields(err.Error())
		if len(parts) != 3 || parts[0] != "MOVED" {
			return err
		}
		target = parts[2]
		time.Sleep(conf.RaftTimeout / 2)
	}
	return fmt.Errorf("too many redirects")
}
