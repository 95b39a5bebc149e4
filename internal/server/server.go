// Package server is the TCP front end that hands every accepted connection
// to the worker pool as a job.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"dispatchd/internal/logger"
	"dispatchd/internal/worker"

	"golang.org/x/time/rate"
)

const (
	scope = "server"

	// accept エラー時の待ち時間（倍々で増やし上限で止める）
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = 1 * time.Second
)

// Config はサーバーの設定
type Config struct {
	Addr        string        // 待ち受けアドレス
	DocRoot     string        // index.html / hello.html / 404.html の配置先
	AcceptRate  float64       // 1 秒あたりの accept 上限（0 で無制限）
	AcceptBurst int           // accept のバースト許容数
	ReadTimeout time.Duration // リクエスト読み込みのタイムアウト（0 で無制限）
	SleepDelay  time.Duration // GET /sleep の待ち時間
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:7878",
		DocRoot:     ".",
		AcceptBurst: 1,
		ReadTimeout: 10 * time.Second,
		SleepDelay:  5 * time.Second,
	}
}

// Server は接続ごとにジョブを投入する TCP サーバー
type Server struct {
	config  Config
	pool    *worker.Pool
	limiter *rate.Limiter
	log     *logger.Logger

	mu   sync.Mutex
	addr net.Addr
}

// New は新しいサーバーを作成する
func New(pool *worker.Pool, config Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default
	}
	s := &Server{
		config: config,
		pool:   pool,
		log:    log,
	}
	if config.AcceptRate > 0 {
		burst := config.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.AcceptRate), burst)
	}
	return s
}

// ListenAndServe は config.Addr で待ち受け、ctx が終わるまで接続を処理する
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ln から接続を受け付けてプールに渡す
// ctx が終わるとリスナーを閉じて nil を返す。プールのシャットダウンは呼び出し元の責務
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
	}()

	s.log.Info(scope, "listening on %s", ln.Addr())

	var acceptDelay time.Duration
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info(scope, "listener closed")
				return nil
			}
			acceptDelay = nextAcceptDelay(acceptDelay)
			s.log.Warn(scope, "failed to accept connection: %v; retrying in %v", err, acceptDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptDelay):
			}
			continue
		}
		acceptDelay = 0

		if err := s.pool.Execute(func() { s.handleConn(conn) }); err != nil {
			_ = conn.Close()
			if errors.Is(err, worker.ErrPoolClosed) {
				s.log.Warn(scope, "pool closed; stop accepting")
				return nil
			}
			return fmt.Errorf("failed to dispatch connection: %w", err)
		}
	}
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}

// Addr は待ち受け中のアドレスを返す（Serve 前は nil）
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
