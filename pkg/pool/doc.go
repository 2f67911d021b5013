// Package pool provides thread-safe object pooling for zero-allocation hot
// paths in the engine's per-tick reap work.
//
// # Pooled Types
//
// - VoiceIDs: per-tick dead-voice reap scan buffers
//
// # Usage
//
// Use the global pool instance for the common pattern:
//
//	dead := pool.GlobalPools.VoiceIDs.Get()
//	defer pool.GlobalPools.VoiceIDs.Put(dead)
//
// # Thread Safety
//
// The pool uses sync.Pool internally and is safe for concurrent access.
//
// # Memory Management
//
// The pool enforces a size limit to prevent unbounded growth:
//   - VoiceID slices: max 1024 capacity
//
// Oversized objects are not returned to the pool and will be garbage collected normally.
package pool
