// Package loadgen drives a worker pool with synthetic jobs.
//
// Several submitter goroutines call Pool.Execute concurrently until the
// requested number of jobs has been handed over. Each job optionally sleeps
// to simulate work, and every PanicEvery-th job panics to exercise the
// pool's failure policy.
//
//	gen := loadgen.New(pool, loadgen.Config{Submitters: 10, Jobs: 10000})
//	snap, err := gen.RunRequests(ctx)
package loadgen
