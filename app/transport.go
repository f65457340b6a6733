package app

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/hashicorp/raft"
	"github.com/moontrade/mersenne/logger"
)

// raftMarker starts every raft connection. RESP traffic never begins with a
// zero byte.
const raftMarker = "\x00mersenne-raft/1"

// raftHello is what a peer writes before speaking the raft protocol.
func raftHello(auth string) []byte {
	return append([]byte(raftMarker), auth...)
}

// sniffHello claims connections that start with hello, reading one byte at a
// time so a RESP client is rejected on its first byte.
func sniffHello(hello []byte) func(r io.Reader) (int, bool) {
	return func(r io.Reader) (int, bool) {
		var b [1]byte
		for i := range hello {
			if _, err := io.ReadFull(r, b[:]); err != nil || b[0] != hello[i] {
				return 0, false
			}
		}
		return len(hello), true
	}
}

// raftStream is the raft.StreamLayer over the shared socket.
type raftStream struct {
	net.Listener
	hello  []byte
	tlscfg *tls.Config
}

func (s *raftStream) Dial(addr raft.ServerAddress, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	var conn net.Conn
	var err error
	if s.tlscfg != nil {
		conn, err = tls.DialWithDialer(d, "tcp", string(addr), s.tlscfg)
	} else {
		conn, err = d.Dial("tcp", string(addr))
	}
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(s.hello); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func transportInit(conf Config, tlscfg *tls.Config, mux *socketMux) raft.Transport {
	hello := raftHello(conf.Auth)
	stream := &raftStream{
		Listener: mux.route(sniffHello(hello)),
		hello:    hello,
		tlscfg:   tlscfg,
	}
	return raft.NewNetworkTransport(stream, conf.MaxPool, 0, logger.RaftWriter)
}
