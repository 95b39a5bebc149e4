package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"dispatchd/internal/events"
	"dispatchd/internal/logger"
	"dispatchd/internal/metrics"
)

// State はプールのライフサイクル状態
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Pool は固定数のワーカーゴルーチンを管理する
type Pool struct {
	size      int
	policy    FailurePolicy
	queue     *Queue
	log       *logger.Logger
	metrics   *metrics.Metrics
	bus       *events.Bus
	onFailure func(*JobError)

	wg    sync.WaitGroup
	state atomic.Int32
	alive atomic.Int32

	shutdownOnce sync.Once
	done         chan struct{}
}

// New は size 個のワーカーを持つプールを作成し、ワーカーを起動する
func New(size int, opts ...Option) (*Pool, error) {
	config := DefaultConfig()
	config.NumWorkers = size
	for _, opt := range opts {
		opt(&config)
	}
	return NewWithConfig(config)
}

// NewWithConfig は設定を指定してプールを作成し、ワーカーを起動する
func NewWithConfig(config Config) (*Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		size:      config.NumWorkers,
		policy:    config.FailurePolicy,
		queue:     NewQueue(config.QueueCapacity),
		log:       config.Logger,
		metrics:   config.Metrics,
		bus:       config.Bus,
		onFailure: config.OnFailure,
		done:      make(chan struct{}),
	}
	if p.log == nil {
		p.log = logger.Default
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}

	p.state.Store(int32(StateRunning))
	p.alive.Store(int32(p.size))
	for id := 1; id <= p.size; id++ {
		p.wg.Add(1)
		go p.runWorker(id)
	}

	p.log.Info("", "WorkerPool started with %d workers (policy: %s)", p.size, p.policy)
	return p, nil
}

// Execute は関数をジョブとして投入する
func (p *Pool) Execute(fn func()) error {
	if fn == nil {
		return ErrNilJob
	}
	return p.Submit(Job(fn))
}

// Submit はタスクをキューに投入してすぐに戻る
// 実行結果は返さない。シャットダウン開始後は ErrPoolClosed を返す
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilJob
	}
	if p.State() != StateRunning {
		p.metrics.RecordReject()
		return ErrPoolClosed
	}
	if err := p.queue.Push(task); err != nil {
		p.metrics.RecordReject()
		return ErrPoolClosed
	}
	p.metrics.RecordSubmit()
	return nil
}

// Shutdown はキューを閉じ、全ワーカーの終了を待つ
// キューに残ったジョブはすべて実行される。複数回・並行に呼んでも安全
// ジョブ内から同期的に呼ぶと自分自身の終了を待ち続けるため、go pool.Shutdown() を使う
func (p *Pool) Shutdown() {
	p.beginShutdown()
	<-p.done
}

// ShutdownContext は Shutdown と同じだが、ctx が終わると待機をやめる
// ワーカーはバックグラウンドでキューを処理し続ける
func (p *Pool) ShutdownContext(ctx context.Context) error {
	p.beginShutdown()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done はプールが Terminated になると閉じるチャネルを返す
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

func (p *Pool) beginShutdown() {
	p.shutdownOnce.Do(func() {
		p.state.Store(int32(StateShuttingDown))
		pending := p.queue.Len()
		p.queue.Close()
		p.bus.Publish(events.NewPoolShutdownEvent(pending))
		p.log.Info("", "WorkerPool shutting down (%d jobs pending)", pending)

		go func() {
			p.wg.Wait()

			// 全ワーカーが PolicyTerminate で落ちた場合のみ残る
			if left := p.queue.Len(); left > 0 {
				p.log.Warn("", "WorkerPool terminated with %d jobs never run (no live workers)", left)
			}

			p.state.Store(int32(StateTerminated))
			p.bus.Publish(events.NewPoolTerminatedEvent())
			p.log.Info("", "WorkerPool stopped")
			close(p.done)
		}()
	})
}

// State は現在の状態を返す
func (p *Pool) State() State {
	return State(p.state.Load())
}

// Size は生成時のワーカー数を返す
func (p *Pool) Size() int {
	return p.size
}

// Alive は稼働中のワーカー数を返す
func (p *Pool) Alive() int {
	return int(p.alive.Load())
}

// Pending はキューで待機中のジョブ数を返す
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Policy は panic 時のポリシーを返す
func (p *Pool) Policy() FailurePolicy {
	return p.policy
}

// Metrics はメトリクスを返す
func (p *Pool) Metrics() *metrics.Metrics {
	return p.metrics
}

// Stats はプールの状態のスナップショット
type Stats struct {
	State   string           `json:"state"`
	Size    int              `json:"size"`
	Alive   int              `json:"alive"`
	Pending int              `json:"pending"`
	Policy  string           `json:"policy"`
	Jobs    metrics.Snapshot `json:"jobs"`
}

// Stats は現在の状態を返す
func (p *Pool) Stats() Stats {
	return Stats{
		State:   p.State().String(),
		Size:    p.size,
		Alive:   p.Alive(),
		Pending: p.Pending(),
		Policy:  p.policy.String(),
		Jobs:    p.metrics.Snapshot(),
	}
}
