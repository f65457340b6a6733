package app

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/moontrade/mersenne/logger"
)

func tlsInit(conf Config) (*tls.Config, error) {
	if conf.TLSCertPath == "" {
		return nil, nil
	}
	pair, err := tls.LoadX509KeyPair(conf.TLSCertPath, conf.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{pair}}
	// raft peers dial each other with this config too
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err == nil && len(leaf.DNSNames) > 0 {
		cfg.ServerName = leaf.DNSNames[0]
	}
	return cfg, nil
}

func listenInit(conf Config, tlscfg *tls.Config) (*socketMux, error) {
	var ln net.Listener
	var err error
	if tlscfg != nil {
		ln, err = tls.Listen("tcp4", conf.Addr, tlscfg)
	} else {
		ln, err = net.Listen("tcp4", conf.Addr)
	}
	if err != nil {
		return nil, err
	}
	logger.Print("server listening at %s", ln.Addr())
	if conf.ServerReady != nil {
		conf.ServerReady(ln.Addr().String(), conf.Auth, tlscfg)
	}
	return &socketMux{ln: ln}, nil
}

// socketMux shares one listening socket between the raft transport and the
// RESP front end. Every route sniffs the first bytes of a new connection and
// the first one that claims it receives the connection with the sniffed
// prefix consumed.
type socketMux struct {
	ln     net.Listener
	routes []muxRoute
}

type muxRoute struct {
	// sniff returns how many prefix bytes to drop. Nil claims everything.
	sniff func(r io.Reader) (n int, ok bool)
	ln    *muxListener
}

// route adds a logical listener. Routes are tried in the order added.
func (m *socketMux) route(sniff func(r io.Reader) (n int, ok bool)) net.Listener {
	ln := &muxListener{addr: m.ln.Addr(), conns: make(chan net.Conn)}
	m.routes = append(m.routes, muxRoute{sniff: sniff, ln: ln})
	return ln
}

// serve accepts connections until the socket is closed.
func (m *socketMux) serve() error {
	for {
		c, err := m.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error(err, "accept")
			continue
		}
		go m.dispatch(c)
	}
}

func (m *socketMux) dispatch(c net.Conn) {
	pc := &prefixConn{Conn: c, rd: bufio.NewReader(c)}
	for _, r := range m.routes {
		n, ok := 0, true
		if r.sniff != nil {
			n, ok = r.sniff(&replayReader{rd: pc.rd})
		}
		if !ok {
			continue
		}
		if _, err := pc.rd.Discard(n); err != nil {
			break
		}
		r.ln.conns <- pc
		return
	}
	c.Close()
}

func (m *socketMux) close() error {
	return m.ln.Close()
}

// replayReader reads the buffered prefix of a connection without consuming
// it, so the next route sees the same bytes.
type replayReader struct {
	rd  *bufio.Reader
	off int
}

func (r *replayReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.off == r.rd.Buffered() {
		if _, err := r.rd.Peek(r.off + 1); err != nil {
			return 0, err
		}
	}
	buf, _ := r.rd.Peek(r.rd.Buffered())
	n := copy(p, buf[r.off:])
	r.off += n
	return n, nil
}

// prefixConn reads through the buffer that sniffing filled.
type prefixConn struct {
	net.Conn
	rd *bufio.Reader
}

func (c *prefixConn) Read(p []byte) (int, error) {
	return c.rd.Read(p)
}

// muxListener hands out the connections of one route. Accept blocks for the
// life of the process once the socket closes, and Close is a no-op; the
// socket itself is owned by socketMux.
type muxListener struct {
	addr  net.Addr
	conns chan net.Conn
}

func (l *muxListener) Accept() (net.Conn, error) { return <-l.conns, nil }
func (l *muxListener) Addr() net.Addr            { return l.addr }
func (l *muxListener) Close() error              { return nil }
