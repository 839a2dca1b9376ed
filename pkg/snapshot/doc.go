// Package snapshot persists traversal state between runs.
//
// A Store saves opaque byte payloads under a key. Save and Load encode a
// traversal.State as JSON on top of any Store, so a run that is stopped
// (time budget, shutdown signal, external stop request) can be picked up
// by a later process exactly where it left off.
//
// Backends:
//
//   - FileStore: one JSON file per key in a local directory
//   - RedisStore: one Redis string per key, with an optional TTL
//   - SQLiteStore: one row per key in a "snapshots" table
//
// Usage:
//
//	store, _ := snapshot.NewFileStore(".state")
//	if err := snapshot.Save(ctx, store, "source-1", t.GetState()); err != nil {
//	    return err
//	}
//	state, err := snapshot.Load[string](ctx, store, "source-1")
//	if errors.Is(err, snapshot.ErrNotFound) {
//	    // start from the root
//	}
package snapshot
