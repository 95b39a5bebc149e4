package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxSamples = 1000

// Metrics はジョブ実行の統計を収集する
type Metrics struct {
	submitted atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	runTimeNs atomic.Uint64

	mu         sync.RWMutex
	startTime  time.Time
	samples    []time.Duration
	maxSamples int
}

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99 計算に保持するサンプル数
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(Config{MaxLatencySamples: defaultMaxSamples})
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	maxSamples := config.MaxLatencySamples
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	return &Metrics{
		startTime:  time.Now(),
		samples:    make([]time.Duration, 0, maxSamples),
		maxSamples: maxSamples,
	}
}

// RecordSubmit はキューに受け付けたジョブを記録する
func (m *Metrics) RecordSubmit() {
	m.submitted.Add(1)
}

// RecordReject はシャットダウン後に拒否された投入を記録する
func (m *Metrics) RecordReject() {
	m.rejected.Add(1)
}

// RecordSuccess は正常終了したジョブを記録する
func (m *Metrics) RecordSuccess(runTime time.Duration) {
	m.completed.Add(1)
	m.record(runTime)
}

// RecordFailure は panic したジョブを記録する
func (m *Metrics) RecordFailure(runTime time.Duration) {
	m.failed.Add(1)
	m.record(runTime)
}

func (m *Metrics) record(runTime time.Duration) {
	m.runTimeNs.Add(uint64(runTime.Nanoseconds()))

	m.mu.Lock()
	if len(m.samples) < m.maxSamples {
		m.samples = append(m.samples, runTime)
	}
	m.mu.Unlock()
}

// Submitted は受け付けたジョブ数を返す
func (m *Metrics) Submitted() uint64 {
	return m.submitted.Load()
}

// Rejected は拒否された投入数を返す
func (m *Metrics) Rejected() uint64 {
	return m.rejected.Load()
}

// Completed は正常終了したジョブ数を返す
func (m *Metrics) Completed() uint64 {
	return m.completed.Load()
}

// Failed は失敗したジョブ数を返す
func (m *Metrics) Failed() uint64 {
	return m.failed.Load()
}

// Finished は完了（成功・失敗の合計）ジョブ数を返す
func (m *Metrics) Finished() uint64 {
	return m.completed.Load() + m.failed.Load()
}

// Throughput は開始からの平均ジョブ/秒を返す
func (m *Metrics) Throughput() float64 {
	m.mu.RLock()
	elapsed := time.Since(m.startTime).Seconds()
	m.mu.RUnlock()
	if elapsed == 0 {
		return 0
	}
	return float64(m.Finished()) / elapsed
}

// AverageRunTime は平均実行時間を返す
func (m *Metrics) AverageRunTime() time.Duration {
	finished := m.Finished()
	if finished == 0 {
		return 0
	}
	return time.Duration(m.runTimeNs.Load() / finished)
}

// P99RunTime は P99 実行時間を返す（サンプルベース）
func (m *Metrics) P99RunTime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.samples))
	copy(sorted, m.samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// FailureRate は失敗率を返す（0.0〜1.0）
func (m *Metrics) FailureRate() float64 {
	finished := m.Finished()
	if finished == 0 {
		return 0
	}
	return float64(m.failed.Load()) / float64(finished)
}

// Reset はサンプルと計測開始時刻をリセットする（カウンタは保持）
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startTime = time.Now()
	m.samples = m.samples[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Submitted      uint64        `json:"submitted"`
	Rejected       uint64        `json:"rejected"`
	Completed      uint64        `json:"completed"`
	Failed         uint64        `json:"failed"`
	Throughput     float64       `json:"throughput"`
	AverageRunTime time.Duration `json:"average_run_time"`
	P99RunTime     time.Duration `json:"p99_run_time"`
	FailureRate    float64       `json:"failure_rate"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	elapsed := time.Since(m.startTime)
	m.mu.RUnlock()

	return Snapshot{
		Submitted:      m.Submitted(),
		Rejected:       m.Rejected(),
		Completed:      m.Completed(),
		Failed:         m.Failed(),
		Throughput:     m.Throughput(),
		AverageRunTime: m.AverageRunTime(),
		P99RunTime:     m.P99RunTime(),
		FailureRate:    m.FailureRate(),
		Elapsed:        elapsed,
	}
}
