package worker

import (
	"fmt"
	"runtime"
	"strings"

	"dispatchd/internal/events"
	"dispatchd/internal/logger"
	"dispatchd/internal/metrics"
)

// FailurePolicy はジョブが panic したときのワーカーの振る舞い
type FailurePolicy int

const (
	// PolicyIsolate は panic を回収してログに残し、ワーカーは処理を続ける
	PolicyIsolate FailurePolicy = iota
	// PolicyTerminate は panic を回収した上でワーカーを終了させる
	// ワーカーは再生成されず、プールの実効並列度が 1 減る
	PolicyTerminate
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyIsolate:
		return "isolate"
	case PolicyTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy はポリシー名をパースする
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "isolate":
		return PolicyIsolate, nil
	case "terminate":
		return PolicyTerminate, nil
	default:
		return PolicyIsolate, fmt.Errorf("unknown failure policy: %s", s)
	}
}

// Config はワーカープールの設定
type Config struct {
	NumWorkers    int           // ワーカー数（1 以上）
	QueueCapacity int           // キュー容量（0 で無制限）
	FailurePolicy FailurePolicy // panic 時の振る舞い

	Logger    *logger.Logger   // nil で logger.Default
	Metrics   *metrics.Metrics // nil で新規作成
	Bus       *events.Bus      // nil でイベントを発行しない
	OnFailure func(*JobError)  // panic したジョブごとにワーカー上で呼ばれる
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		NumWorkers:    runtime.NumCPU(),
		QueueCapacity: 0,
		FailurePolicy: PolicyIsolate,
	}
}

// Option は New に渡す設定関数
type Option func(*Config)

// WithQueueCapacity はキュー容量を指定する
func WithQueueCapacity(capacity int) Option {
	return func(c *Config) { c.QueueCapacity = capacity }
}

// WithFailurePolicy は panic 時のポリシーを指定する
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(c *Config) { c.FailurePolicy = policy }
}

// WithLogger はロガーを指定する
func WithLogger(l *logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics はメトリクスの収集先を指定する
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithEventBus はライフサイクルイベントの発行先を指定する
func WithEventBus(bus *events.Bus) Option {
	return func(c *Config) { c.Bus = bus }
}

// WithFailureHandler は panic したジョブの通知先を指定する
func WithFailureHandler(fn func(*JobError)) Option {
	return func(c *Config) { c.OnFailure = fn }
}

func (c Config) validate() error {
	if c.NumWorkers < 1 {
		return &ConstructionError{Size: c.NumWorkers, Err: ErrInvalidSize}
	}
	if c.QueueCapacity < 0 {
		return &ConstructionError{
			Size: c.NumWorkers,
			Err:  fmt.Errorf("queue capacity must be non-negative, got %d", c.QueueCapacity),
		}
	}
	if c.FailurePolicy != PolicyIsolate && c.FailurePolicy != PolicyTerminate {
		return &ConstructionError{
			Size: c.NumWorkers,
			Err:  fmt.Errorf("unknown failure policy %d", int(c.FailurePolicy)),
		}
	}
	return nil
}
