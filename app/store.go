package app

import "github.com/hashicorp/raft"

// storeInit returns the raft log and stable stores. Both live in memory; the
// engine state survives restarts through file snapshots.
func storeInit() (raft.LogStore, raft.StableStore) {
	store := raft.NewInmemStore()
	return store, store
}
