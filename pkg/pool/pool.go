// Package pool provides generic object pooling for zero-allocation hot
// paths in the engine's per-tick reap work.
package pool

import "sync"

// VoiceIDSlicePool pools []int32 slices used by the engine's per-tick
// reap scan (pkg/amuse/engine's bringOutYourDead) to collect the IDs of
// voices pending destruction without allocating each tick.
type VoiceIDSlicePool struct {
	pool sync.Pool
}

// NewVoiceIDSlicePool creates a voice-ID slice pool.
func NewVoiceIDSlicePool(capacity int) *VoiceIDSlicePool {
	return &VoiceIDSlicePool{
		pool: sync.Pool{
			New: func() interface{} {
				s := make([]int32, 0, capacity)
				return &s
			},
		},
	}
}

// Get retrieves a slice from the pool.
func (p *VoiceIDSlicePool) Get() *[]int32 {
	s := p.pool.Get().(*[]int32)
	*s = (*s)[:0]
	return s
}

// Put returns a slice to the pool.
func (p *VoiceIDSlicePool) Put(s *[]int32) {
	if s != nil && cap(*s) <= 1024 {
		p.pool.Put(s)
	}
}

// GlobalPools provides singleton access to common pools.
var GlobalPools = struct {
	VoiceIDs *VoiceIDSlicePool
}{
	VoiceIDs: NewVoiceIDSlicePool(256),
}
