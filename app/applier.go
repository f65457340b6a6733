package app

import "github.com/golang/snappy"

// maxBatch is the most write requests folded into one raft log entry.
const maxBatch = 1024

// runWriteApplier is a background routine that handles all write requests.
// Its job is to apply the request to the Raft log and returns the result to
// writeRequest. Once raft is shut down every request fails with a
// CLUSTERDOWN error.
func runWriteApplier(m *machine, ra *raftWrap) {
	for {
		// one log entry per batch
		var reqs []*writeRequestFuture
		r := <-m.wrC
		reqs = append(reqs, r)
		var full bool
		for !full {
			select {
			case r := <-m.wrC:
				reqs = append(reqs, r)
				full = len(reqs) == maxBatch
			default:
				full = true
			}
		}
		cmds := make([][]string, len(reqs))
		for i, r := range reqs {
			cmds[i] = r.args
		}
		data := snappy.Encode(nil, encodeBatch(cmds))

		resps, err := func() ([]applyResp, error) {
			f := ra.Apply(data, 0)
			err := f.Error()
			if err != nil {
				return nil, err
			}
			return f.Response().([]applyResp), nil
		}()
		if err != nil {
			for _, r := range reqs {
				r.err = errRaftConvert(ra, err)
				r.wg.Done()
			}
		} else {
			for i := range reqs {
				reqs[i].resp = resps[i].resp
				reqs[i].elap = resps[i].elap
				reqs[i].err = resps[i].err
				reqs[i].wg.Done()
			}
		}
	}
}
