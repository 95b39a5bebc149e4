package loadgen

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"dispatchd/internal/logger"
	"dispatchd/internal/metrics"
	"dispatchd/internal/worker"
)

// Config は負荷生成の設定
type Config struct {
	Submitters  int           // 投入ゴルーチン数（0 で CPU 数）
	Jobs        uint64        // 投入するジョブ総数
	JobDuration time.Duration // 各ジョブの擬似処理時間
	PanicEvery  uint64        // N 件ごとに panic させる（0 で無効）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Submitters: 0,
		Jobs:       10000,
	}
}

// Result は投入側の結果
type Result struct {
	Submitted uint64
	Rejected  uint64
	Elapsed   time.Duration
}

// Generator は負荷生成器
type Generator struct {
	config Config
	pool   *worker.Pool

	next      atomic.Uint64
	submitted atomic.Uint64
	rejected  atomic.Uint64
	ran       atomic.Uint64
}

// New は新しい Generator を作成する
func New(pool *worker.Pool, config Config) *Generator {
	if config.Submitters <= 0 {
		config.Submitters = runtime.NumCPU()
	}
	return &Generator{
		config: config,
		pool:   pool,
	}
}

// Run は全ジョブを投入して戻る（実行完了は待たない）
func (g *Generator) Run(ctx context.Context) Result {
	start := time.Now()
	var wg sync.WaitGroup

	for range g.config.Submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.submitLoop(ctx)
		}()
	}
	wg.Wait()

	result := Result{
		Submitted: g.submitted.Load(),
		Rejected:  g.rejected.Load(),
		Elapsed:   time.Since(start),
	}
	logger.Info("", "loadgen submitted %d jobs (%d rejected) in %v",
		result.Submitted, result.Rejected, result.Elapsed)
	return result
}

func (g *Generator) submitLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		idx := g.next.Add(1)
		if idx > g.config.Jobs {
			return
		}

		if err := g.pool.Execute(g.createJob(idx)); err != nil {
			g.rejected.Add(1)
			return
		}
		g.submitted.Add(1)
	}
}

// createJob は idx 番目のジョブを作成する
func (g *Generator) createJob(idx uint64) func() {
	return func() {
		if g.config.JobDuration > 0 {
			time.Sleep(g.config.JobDuration)
		}
		g.ran.Add(1)
		if g.config.PanicEvery > 0 && idx%g.config.PanicEvery == 0 {
			panic(fmt.Sprintf("loadgen: synthetic failure in job %d", idx))
		}
	}
}

// Ran は実行されたジョブ数を返す
func (g *Generator) Ran() uint64 {
	return g.ran.Load()
}

// RunRequests は全ジョブを投入し、プールをシャットダウンして完了を待つ
func (g *Generator) RunRequests(ctx context.Context) (*metrics.Snapshot, error) {
	result := g.Run(ctx)
	g.pool.Shutdown()

	snapshot := g.pool.Metrics().Snapshot()
	if result.Rejected > 0 {
		return &snapshot, fmt.Errorf("%d submissions rejected: %w", result.Rejected, worker.ErrPoolClosed)
	}
	return &snapshot, ctx.Err()
}
