package app

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/moontrade/mersenne/logger"
	"github.com/tidwall/redcon"
)

// respClient is the state of one RESP connection.
type respClient struct {
	authed bool
	opts   SendOptions
}

// quitReply answers QUIT and then closes the connection.
type quitReply struct{}

// Hijack is a reply that takes the connection out of the RESP loop. The
// function owns the detached connection and must close it.
type Hijack func(s *service, conn redcon.DetachedConn)

func commandArgs(cmd redcon.Command) []string {
	args := make([]string, len(cmd.Args))
	for i, arg := range cmd.Args {
		args[i] = string(arg)
	}
	args[0] = strings.ToLower(args[0])
	return args
}

// serveRESP runs the redis protocol front end on ln.
func serveRESP(s *service, ln net.Listener) {
	err := redcon.Serve(ln, s.handleRESP, s.acceptRESP, s.closedRESP)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Error(err, "resp")
	}
}

func (s *service) acceptRESP(conn redcon.Conn) bool {
	sess, ok := s.Opened(conn.RemoteAddr())
	if !ok {
		return false
	}
	c := &respClient{}
	c.opts.Context = sess
	c.opts.From = c
	conn.SetContext(c)
	return true
}

func (s *service) closedRESP(conn redcon.Conn, err error) {
	if c, ok := conn.Context().(*respClient); ok {
		s.Closed(c.opts.Context, conn.RemoteAddr())
	}
}

// handleRESP sends a command and everything pipelined behind it, then writes
// the replies in order. Nothing after a QUIT is run.
func (s *service) handleRESP(conn redcon.Conn, cmd redcon.Command) {
	c := conn.Context().(*respClient)
	batch := [][]string{commandArgs(cmd)}
	for _, cmd := range conn.ReadPipeline() {
		batch = append(batch, commandArgs(cmd))
	}
	recvs := make([]Receiver, 0, len(batch))
	for _, args := range batch {
		recvs = append(recvs, s.dispatch(c, args))
		if args[0] == "quit" {
			break
		}
	}
	for i, r := range recvs {
		v, elapsed, err := r.Recv()
		s.reply(conn, batch[i], v, err)
		s.mon.Send(Message{
			Addr:    conn.RemoteAddr(),
			Args:    batch[i],
			Resp:    v,
			Err:     err,
			Elapsed: elapsed,
		})
	}
}

func (s *service) reply(conn redcon.Conn, args []string, v interface{}, err error) {
	if err != nil {
		if err == ErrUnknownCommand {
			err = fmt.Errorf("%w '%s'", err, args[0])
		}
		conn.WriteError(wireError(err))
		return
	}
	switch v := v.(type) {
	case Hijack:
		go v(s, conn.Detach())
	case quitReply:
		conn.WriteString("OK")
		conn.Close()
	default:
		conn.WriteAny(v)
	}
}

// dispatch answers the connection level commands and sends everything else
// to the service.
func (s *service) dispatch(c *respClient, args []string) Receiver {
	switch args[0] {
	case "quit":
		return Response(quitReply{}, 0, nil)
	case "auth":
		if len(args) != 2 {
			return Response(nil, 0, ErrWrongNumArgs)
		}
		err := s.Auth(args[1])
		c.authed = err == nil
		if err != nil {
			return Response(nil, 0, err)
		}
		return Response(redcon.SimpleString("OK"), 0, nil)
	}
	if !c.authed {
		if err := s.Auth(""); err != nil {
			return Response(nil, 0, err)
		}
		c.authed = true
	}
	switch args[0] {
	case "ping":
		switch len(args) {
		case 1:
			return Response(redcon.SimpleString("PONG"), 0, nil)
		case 2:
			return Response(args[1], 0, nil)
		}
		return Response(nil, 0, ErrWrongNumArgs)
	case "echo":
		if len(args) != 2 {
			return Response(nil, 0, ErrWrongNumArgs)
		}
		return Response(args[1], 0, nil)
	case "shutdown":
		logger.Notice("shutting down")
		os.Exit(0)
	}
	return s.Send(args, &c.opts)
}
