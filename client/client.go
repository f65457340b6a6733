// Package client talks to a mersenned server over the Redis protocol and
// exposes the remote generator as a stream.Source.
package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/moontrade/mersenne/dist"
	"github.com/moontrade/mersenne/stream"
)

// RedisDial dials a server with the redis protocol using the provided TLS
// config and auth token. The TLS/auth must be correct in order to establish a
// connection.
func RedisDial(addr, auth string, tlscfg *tls.Config, opts ...redis.DialOption) (redis.Conn, error) {
	if tlscfg != nil {
		opts = append(opts, redis.DialUseTLS(true), redis.DialTLSConfig(tlscfg))
	}
	conn, err := redis.Dial("tcp", addr, opts...)
	if err != nil {
		return nil, err
	}
	if auth != "" {
		res, err := redis.String(conn.Do("auth", auth))
		if err != nil {
			conn.Close()
			return nil, err
		}
		if res != "OK" {
			conn.Close()
			return nil, fmt.Errorf("'OK', got '%s'", res)
		}
	}
	return conn, nil
}

type options struct {
	auth    string
	tlscfg  *tls.Config
	timeout time.Duration
}

// Option configures Dial.
type Option func(o *options)

// WithAuth sets the AUTH token sent after connecting.
func WithAuth(auth string) Option {
	return func(o *options) { o.auth = auth }
}

// WithTLS dials with TLS.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tlscfg = cfg }
}

// WithTimeout bounds connecting, reading and writing.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Conn is one connection to the server. The server keeps session state (a
// private engine or the shared one) per connection, so a Conn is one stream.
// A Conn is safe for concurrent use; commands are serialized.
type Conn struct {
	mu     sync.Mutex
	rc     redis.Conn
	closed bool
}

var _ stream.Source = (*Conn)(nil)

// Dial opens a connection.
func Dial(addr string, opts ...Option) (*Conn, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var dopts []redis.DialOption
	if o.timeout > 0 {
		dopts = append(dopts,
			redis.DialConnectTimeout(o.timeout),
			redis.DialReadTimeout(o.timeout),
			redis.DialWriteTimeout(o.timeout))
	}
	rc, err := RedisDial(addr, o.auth, o.tlscfg, dopts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stream.ErrStreamUnavailable, err)
	}
	return &Conn{rc: rc}, nil
}

// Close closes the connection. Later calls fail with ErrStreamUnavailable.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rc.Close()
}

// Do sends a raw command.
func (c *Conn) Do(cmd string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, stream.ErrStreamUnavailable
	}
	reply, err := c.rc.Do(cmd, args...)
	return reply, convertError(err)
}

// convertError maps wire errors back to the stream and dist sentinels.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return fmt.Errorf("%w: %v", stream.ErrStreamUnavailable, err)
	}
	msg := string(rerr)
	switch {
	case msg == "ERR "+stream.ErrInvalidLength.Error():
		return stream.ErrInvalidLength
	case strings.HasPrefix(msg, "ERR "+dist.ErrInvalidParameter.Error()):
		rest := strings.TrimPrefix(msg, "ERR "+dist.ErrInvalidParameter.Error())
		if rest == "" {
			return dist.ErrInvalidParameter
		}
		return fmt.Errorf("%w%s", dist.ErrInvalidParameter, rest)
	case strings.HasPrefix(msg, "UNAVAILABLE"):
		return fmt.Errorf("%w: %s", stream.ErrStreamUnavailable,
			strings.TrimSpace(strings.TrimPrefix(msg, "UNAVAILABLE")))
	}
	return err
}

// Bytes reads n bytes from the connection's stream.
func (c *Conn) Bytes(n int) ([]byte, error) {
	return redis.Bytes(c.Do("read", n))
}

// Seed re-seeds the engine the connection draws from. In a shared session
// this resets the sequence for every shared client.
func (c *Conn) Seed(seed uint32) error {
	_, err := c.Do("seed", seed)
	return err
}

// Private switches the connection to its own engine seeded with seed.
func (c *Conn) Private(seed uint32) error {
	_, err := c.Do("session", "private", seed)
	return err
}

// Shared switches the connection to the cluster wide engine.
func (c *Conn) Shared() error {
	_, err := c.Do("session", "shared")
	return err
}

// Word returns one tempered word.
func (c *Conn) Word() (uint32, error) {
	v, err := redis.Int64(c.Do("word"))
	return uint32(v), err
}

// Int returns a full-range signed integer.
func (c *Conn) Int() (int32, error) {
	v, err := redis.Int64(c.Do("int"))
	return int32(v), err
}

// CoinFlip returns true for heads.
func (c *Conn) CoinFlip() (bool, error) {
	v, err := redis.Int64(c.Do("coinflip"))
	return v == 1, err
}

func (c *Conn) float(bitSize int, cmd string, args ...interface{}) (float64, error) {
	s, err := redis.String(c.Do(cmd, args...))
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, bitSize)
}

// Float returns a single-precision value in [0,1).
func (c *Conn) Float() (float32, error) {
	v, err := c.float(32, "float")
	return float32(v), err
}

// Double returns a double-precision value in [0,1).
func (c *Conn) Double() (float64, error) {
	return c.float(64, "double")
}

// Gaussian returns an approximate normal sample computed by the server.
func (c *Conn) Gaussian(precision uint32) (float64, error) {
	return c.float(64, "gaussian", precision)
}

// ChiSquare returns an approximate chi-square sample computed by the server.
func (c *Conn) ChiSquare(dof, precision uint32) (float64, error) {
	return c.float(64, "chisquare", dof, precision)
}

// Summary draws count samples of kind on the server and returns their
// statistics.
func (c *Conn) Summary(kind dist.Kind, count int, params ...uint32) (*dist.Summary, error) {
	args := []interface{}{kind.String(), count}
	for _, p := range params {
		args = append(args, p)
	}
	data, err := redis.Bytes(c.Do("summary", args...))
	if err != nil {
		return nil, err
	}
	s := new(dist.Summary)
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Sampler returns a local sampler over the remote byte stream. It derives
// the same values as the server-side commands.
func (c *Conn) Sampler() *dist.Sampler {
	return dist.New(c)
}
