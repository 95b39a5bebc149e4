package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := New()
	if m.Submitted() != 0 || m.Finished() != 0 {
		t.Error("expected zero counters")
	}
	if m.AverageRunTime() != 0 {
		t.Errorf("expected 0 average, got %v", m.AverageRunTime())
	}
	if m.P99RunTime() != 0 {
		t.Errorf("expected 0 p99, got %v", m.P99RunTime())
	}
	if m.FailureRate() != 0 {
		t.Errorf("expected 0 failure rate, got %f", m.FailureRate())
	}
}

func TestRecordSuccessAndFailure(t *testing.T) {
	m := New()

	m.RecordSubmit()
	m.RecordSubmit()
	m.RecordSubmit()
	m.RecordSuccess(10 * time.Millisecond)
	m.RecordSuccess(20 * time.Millisecond)
	m.RecordFailure(30 * time.Millisecond)
	m.RecordReject()

	if m.Submitted() != 3 {
		t.Errorf("expected 3 submitted, got %d", m.Submitted())
	}
	if m.Completed() != 2 {
		t.Errorf("expected 2 completed, got %d", m.Completed())
	}
	if m.Failed() != 1 {
		t.Errorf("expected 1 failed, got %d", m.Failed())
	}
	if m.Rejected() != 1 {
		t.Errorf("expected 1 rejected, got %d", m.Rejected())
	}
	if avg := m.AverageRunTime(); avg != 20*time.Millisecond {
		t.Errorf("expected 20ms average, got %v", avg)
	}
	rate := m.FailureRate()
	if rate < 0.33 || rate > 0.34 {
		t.Errorf("expected failure rate ~0.333, got %f", rate)
	}
}

func TestP99RunTime(t *testing.T) {
	m := New()
	for i := 1; i <= 100; i++ {
		m.RecordSuccess(time.Duration(i) * time.Millisecond)
	}

	if p99 := m.P99RunTime(); p99 != 100*time.Millisecond {
		t.Errorf("expected p99 100ms, got %v", p99)
	}
}

func TestMaxSamples(t *testing.T) {
	m := NewWithConfig(Config{MaxLatencySamples: 5})
	for range 10 {
		m.RecordSuccess(time.Millisecond)
	}

	m.mu.RLock()
	n := len(m.samples)
	m.mu.RUnlock()

	if n != 5 {
		t.Errorf("expected 5 samples, got %d", n)
	}
	if m.Completed() != 10 {
		t.Errorf("expected 10 completed, got %d", m.Completed())
	}
}

func TestReset(t *testing.T) {
	m := New()
	m.RecordSuccess(time.Second)
	m.Reset()

	if m.P99RunTime() != 0 {
		t.Error("expected samples to be cleared")
	}
	if m.Completed() != 1 {
		t.Error("expected counters to survive reset")
	}
}

func TestConcurrentRecord(t *testing.T) {
	m := New()
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.RecordSubmit()
				m.RecordSuccess(time.Microsecond)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Submitted != 1000 {
		t.Errorf("expected 1000 submitted, got %d", snap.Submitted)
	}
	if snap.Completed != 1000 {
		t.Errorf("expected 1000 completed, got %d", snap.Completed)
	}
	if snap.Elapsed <= 0 {
		t.Error("expected positive elapsed")
	}
}
