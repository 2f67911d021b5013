package pool

import (
	"runtime"
	"testing"
)

// TestIntegrationMemoryReduction measures and logs the allocations of a reap
// pattern resembling one engine tick, with and without pooling. It only
// logs a warning when the reduction is below 30%; it does not fail on it.
func TestIntegrationMemoryReduction(t *testing.T) {
	const iterations = 1000

	var memBefore, memAfter runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&memBefore)

	for i := 0; i < iterations; i++ {
		dead := GlobalPools.VoiceIDs.Get()
		for k := 0; k < 4; k++ {
			*dead = append(*dead, int32(k))
		}
		GlobalPools.VoiceIDs.Put(dead)
	}

	runtime.ReadMemStats(&memAfter)
	allocWithPool := memAfter.TotalAlloc - memBefore.TotalAlloc

	runtime.GC()
	runtime.ReadMemStats(&memBefore)

	for i := 0; i < iterations; i++ {
		dead := make([]int32, 0, 4)
		for k := 0; k < 4; k++ {
			dead = append(dead, int32(k))
		}
		_ = dead
	}

	runtime.ReadMemStats(&memAfter)
	allocWithoutPool := memAfter.TotalAlloc - memBefore.TotalAlloc

	reductionPct := (1.0 - float64(allocWithPool)/float64(allocWithoutPool)) * 100.0

	t.Logf("Allocations with pooling:    %d bytes", allocWithPool)
	t.Logf("Allocations without pooling: %d bytes", allocWithoutPool)
	t.Logf("Reduction: %.1f%%", reductionPct)

	if reductionPct < 30 {
		t.Logf("Warning: Expected at least 30%% reduction, got %.1f%%", reductionPct)
	}
}

// TestIntegrationConcurrentAccess verifies thread-safety under concurrent load.
func TestIntegrationConcurrentAccess(t *testing.T) {
	const goroutines = 100
	const operations = 100

	done := make(chan bool, goroutines)

	for g := 0; g < goroutines; g++ {
		go func() {
			for i := 0; i < operations; i++ {
				dead := GlobalPools.VoiceIDs.Get()
				*dead = append(*dead, int32(i))
				GlobalPools.VoiceIDs.Put(dead)
			}
			done <- true
		}()
	}

	for g := 0; g < goroutines; g++ {
		<-done
	}

	t.Logf("Completed %d concurrent goroutines with %d operations each", goroutines, operations)
}
