// Package queuify provides a bounded, persistent FIFO queue that can be
// shared by independent processes through its backing store.
//
// Two engines implement the same contract:
//
//   - disk: a single SQLite file; cross-process coordination happens through
//     SQLite transactions and file change notifications.
//   - redis: a Redis list plus auxiliary keys; coordination happens through
//     atomic Lua scripts, blocking list operations, and pub/sub.
//
// Producers call Put, consumers call Get followed by TaskDone once the item
// has been fully processed. Join blocks until every enqueued item has been
// marked done. Items are opaque values converted to bytes by a Codec.
//
// Example:
//
//	q, _ := disk.Open("/var/lib/app/some.queue", "main", queuify.StringCodec{}, disk.Options{MaxSize: 5})
//	_ = q.Put(ctx, "message0", 0)
//	msg, _ := q.Get(ctx, time.Second)
//	_ = q.TaskDone(ctx)
package queuify
