package app

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/hashicorp/raft"
	"github.com/moontrade/mersenne/logger"
	"github.com/tidwall/redcon"
)

// RESEED seed
// help: re-seeds the shared engine. It's not possible to directly call this
//       from a client service. It can only be issued by the leader's own
//       reseeder.
func cmdRESEED(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	m := getBaseMachine(um)
	if m == nil {
		return nil, ErrInvalid
	}
	if len(args) != 2 {
		return nil, ErrWrongNumArgs
	}
	seed, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return nil, ErrSyntax
	}
	m.engine.Seed(uint32(seed))
	return redcon.SimpleString("OK"), nil
}

// runReseeder is a background routine that periodically reseeds the shared
// engine from the operating system while this server is the leader.
func runReseeder(conf Config, m *machine, ra *raftWrap, done <-chan struct{}) {
	if conf.ReseedInterval <= 0 {
		return
	}
	t := time.NewTicker(conf.ReseedInterval)
	defer t.Stop()
	var rbuf [4]byte
	for {
		select {
		case <-done:
			return
		case <-t.C:
		}
		if ra.State() != raft.Leader {
			continue
		}
		if _, err := rand.Read(rbuf[:]); err != nil {
			logger.Error(err, "reseed")
			continue
		}
		seed := binary.LittleEndian.Uint32(rbuf[:])
		req := new(writeRequestFuture)
		req.args = []string{"reseed", strconv.FormatUint(uint64(seed), 10)}
		req.wg.Add(1)
		m.wrC <- req
		if _, _, err := req.Recv(); err != nil {
			logger.WarnErr(err, "reseed")
			continue
		}
		logger.Debug("shared engine reseeded")
	}
}
