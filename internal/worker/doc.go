// Package worker provides the fixed-size goroutine pool that dispatches
// fire-and-forget jobs.
//
// A Pool owns one shared Queue and N worker goroutines, all started by New.
// Each worker pops a job, runs it to completion, and repeats until the queue
// is closed and empty. Jobs return nothing to the caller; any result must be
// delivered by the job itself.
//
// # Basic Usage
//
//	pool, err := worker.New(4)
//	if err != nil {
//	    return err
//	}
//	defer pool.Shutdown()
//
//	for _, conn := range conns {
//	    conn := conn
//	    if err := pool.Execute(func() { handle(conn) }); err != nil {
//	        // worker.ErrPoolClosed: shutdown already began
//	    }
//	}
//
// # Queue
//
// The queue is unbounded by default, so Execute never blocks. With
// WithQueueCapacity(n) the queue holds at most n pending jobs and Execute
// blocks while it is full; a producer blocked this way is released with
// ErrPoolClosed when shutdown begins.
//
// # Shutdown
//
// Shutdown moves the pool from Running to ShuttingDown, closes the queue and
// waits for every worker to drain it and exit, after which the pool is
// Terminated. Jobs already queued are never dropped. Go has no destructors,
// so owners tie teardown to scope with defer.
//
// A job must not call Shutdown synchronously: Shutdown waits for every
// worker, including the one running that job, so it never returns. From
// inside a job, start teardown with go pool.Shutdown() instead.
//
// # Failures
//
// A panic inside a job is recovered and reported as a *JobError through the
// logger, metrics, the event bus and WithFailureHandler. Under PolicyIsolate
// (the default) the worker keeps serving. Under PolicyTerminate the worker
// exits and is not replaced, so Alive drops by one; if every worker exits
// this way, queued jobs are never run and Shutdown reports them in the log.
package worker
