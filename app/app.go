// Package app hosts the generator behind a Redis compatible service. Each
// connection draws from a private engine, or from a shared engine that is
// replicated with raft so every server produces the same sequence.
package app

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	"github.com/moontrade/mersenne/logger"
)

// Main entrypoint for the cluster node. This must be called once and only
// once, and as the last call in the Go main() function. It returns when the
// server socket is closed.
func Main(conf Config) error {
	confInit(&conf)
	n, err := Open(conf)
	if err != nil {
		logger.Fatal(err)
	}
	if conf.InitRunQuit {
		logger.Notice("init run quit")
		os.Exit(0)
	}
	return n.Serve()
}

// Node is one running server: the service socket, the raft instance and the
// machine holding the shared engine.
type Node struct {
	conf   Config
	mux    *socketMux
	m      *machine
	ra     *raftWrap
	svc    *service
	done   chan struct{}
	served chan error

	closeOnce sync.Once
	closeErr  error
}

// Open starts a node without parsing flags. The socket accepts connections
// once Open returns so a joining node can be reached by the leader. Serve
// waits for the socket to close.
func Open(conf Config) (*Node, error) {
	conf.def()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	hclogger, err := logInit(conf)
	if err != nil {
		return nil, err
	}
	dir, rdata, err := dataDirInit(conf)
	if err != nil {
		return nil, err
	}
	m := machineInit(conf, dir, rdata)
	tlscfg, err := tlsInit(conf)
	if err != nil {
		return nil, err
	}
	mux, err := listenInit(conf, tlscfg)
	if err != nil {
		return nil, err
	}
	trans := transportInit(conf, tlscfg, mux)
	lstore, sstore := storeInit()
	snaps, err := snapshotInit(dir, m, hclogger)
	if err != nil {
		mux.close()
		return nil, err
	}
	ra, err := raftInit(conf, hclogger, m, lstore, sstore, snaps, trans)
	if err != nil {
		mux.close()
		return nil, err
	}
	n := &Node{conf: conf, mux: mux, m: m, ra: ra,
		done: make(chan struct{}), served: make(chan error, 1)}
	n.svc = newService(m, ra, conf.Auth)
	go serveRESP(n.svc, mux.route(nil))
	go func() { n.served <- mux.serve() }()
	if err := clusterInit(conf, ra, mux.ln.Addr().String(), tlscfg); err != nil {
		n.Close()
		return nil, err
	}
	go runWriteApplier(m, ra)
	go runReseeder(conf, m, ra, n.done)
	return n, nil
}

// Addr returns the bound network address.
func (n *Node) Addr() string {
	return n.mux.ln.Addr().String()
}

// Serve blocks until Close.
func (n *Node) Serve() error {
	return <-n.served
}

// WaitLeader blocks until the node is the raft leader.
func (n *Node) WaitLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for n.ra.State() != raft.Leader {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: not leader after %s", ErrNotLeader, timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// Close shuts down raft and the server socket. Connections already accepted
// stay open until their clients close them.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		close(n.done)
		n.closeErr = n.ra.Shutdown().Error()
		if err := n.mux.close(); err != nil && n.closeErr == nil {
			n.closeErr = err
		}
	})
	return n.closeErr
}
