package worker

import (
	"fmt"
	"runtime/debug"
	"time"

	"dispatchd/internal/events"
)

const (
	exitDrained   = "drained"
	exitJobFailed = "job_failed"
)

func workerName(id int) string {
	return fmt.Sprintf("worker-%d", id)
}

// runWorker はキューからジョブを取り出して実行し続ける
// キューがクローズされ空になると終了する
func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	name := workerName(id)
	reason := exitDrained
	defer func() {
		p.alive.Add(-1)
		p.bus.Publish(events.NewWorkerExitedEvent(id, reason))
		p.log.Debug(name, "exited (%s)", reason)
	}()

	p.bus.Publish(events.NewWorkerStartedEvent(id))
	p.log.Debug(name, "started")

	for {
		task, ok := p.queue.Pop()
		if !ok {
			return
		}
		if jobErr := p.runTask(id, task); jobErr != nil && p.policy == PolicyTerminate {
			reason = exitJobFailed
			p.log.Error(name, "terminating after job failure; pool now has %d live workers", p.Alive()-1)
			return
		}
	}
}

// runTask はタスクを 1 つ実行し、panic した場合は JobError を返す
func (p *Pool) runTask(id int, task Task) (jobErr *JobError) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		r := recover()
		if r == nil {
			p.metrics.RecordSuccess(elapsed)
			return
		}

		jobErr = &JobError{WorkerID: id, Value: r, Stack: debug.Stack()}
		p.metrics.RecordFailure(elapsed)
		p.log.Error(workerName(id), "job panicked after %v: %v", elapsed, r)
		p.bus.Publish(events.NewJobFailedEvent(id, jobErr))
		p.notifyFailure(jobErr)
	}()

	task.Run()
	return nil
}

// notifyFailure は OnFailure を呼ぶ。フック自身の panic はログに残して握りつぶす
func (p *Pool) notifyFailure(jobErr *JobError) {
	if p.onFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error(workerName(jobErr.WorkerID), "failure handler panicked: %v", r)
		}
	}()
	p.onFailure(jobErr)
}
