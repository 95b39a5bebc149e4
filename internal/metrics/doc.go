// Package metrics collects job execution statistics for a worker pool.
//
// Counters (submitted, rejected, completed, failed) are atomics; run-time
// samples for the P99 estimate sit behind a RWMutex and are capped at
// Config.MaxLatencySamples.
//
//	m := metrics.New()
//	m.RecordSubmit()
//	start := time.Now()
//	// ... run the job ...
//	m.RecordSuccess(time.Since(start))
//
//	snap := m.Snapshot()
//	fmt.Printf("done=%d failed=%d p99=%v\n", snap.Completed, snap.Failed, snap.P99RunTime)
package metrics
