// Package main is the entry point for dispatchd.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatchd/internal/api"
	"dispatchd/internal/config"
	"dispatchd/internal/events"
	"dispatchd/internal/loadgen"
	"dispatchd/internal/logger"
	"dispatchd/internal/server"
	"dispatchd/internal/worker"
)

var (
	version = "dev"
)

// options はコマンドラインフラグの値
type options struct {
	configFile  string
	workers     int
	queueCap    int
	policy      string
	addr        string
	docRoot     string
	acceptRate  float64
	monitorAddr string
	logLevel    string
	bench       uint64
	benchSubs   int
	benchSleep  time.Duration
}

// settings は設定ファイルとフラグを合成した結果
type settings struct {
	pool        worker.Config
	server      server.Config
	monitorAddr string
	level       logger.Level
}

func main() {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.IntVar(&opts.workers, "workers", 0, "ワーカー数（0 で CPU 数）")
	flag.IntVar(&opts.queueCap, "queue", 0, "キュー容量（0 で無制限）")
	flag.StringVar(&opts.policy, "policy", "", "ジョブ panic 時のポリシー (isolate, terminate)")
	flag.StringVar(&opts.addr, "addr", "", "待ち受けアドレス (例: 127.0.0.1:7878)")
	flag.StringVar(&opts.docRoot, "docroot", "", "HTML ファイルのディレクトリ")
	flag.Float64Var(&opts.acceptRate, "accept-rate", 0, "1 秒あたりの accept 上限（0 で無制限）")
	flag.StringVar(&opts.monitorAddr, "monitor", "", "モニター API のアドレス (例: :8080)")
	flag.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	flag.Uint64Var(&opts.bench, "bench", 0, "サーバーを起動せず N 件の合成ジョブを実行する")
	flag.IntVar(&opts.benchSubs, "bench-submitters", 0, "ベンチマークの投入ゴルーチン数")
	flag.DurationVar(&opts.benchSleep, "bench-sleep", 0, "ベンチマークの各ジョブの処理時間")
	flag.BoolVar(&showVersion, "version", false, "バージョンを表示")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `dispatchd - fixed-size worker pool request dispatcher

Usage:
  dispatchd [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # 4 ワーカーで起動
  dispatchd --workers 4

  # 設定ファイルから起動し、モニターを有効化
  dispatchd --config dispatchd.yaml --monitor :8080

  # 2 ワーカーに 100000 件のジョブを投入
  dispatchd --workers 2 --bench 100000
`)
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("dispatchd version %s\n", version)
		return
	}

	st, err := buildSettings(opts)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}
	logger.Default.SetLevel(st.level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("", "中断シグナルを受信、終了中...")
		cancel()
	}()

	if opts.bench > 0 {
		err = runBench(ctx, st, loadgen.Config{
			Submitters:  opts.benchSubs,
			Jobs:        opts.bench,
			JobDuration: opts.benchSleep,
		})
	} else {
		err = runServer(ctx, st)
	}
	if err != nil {
		logger.Error("", "実行エラー: %v", err)
		os.Exit(1)
	}
}

// buildSettings は設定ファイルを読み込み、フラグでオーバーライドする
func buildSettings(opts options) (settings, error) {
	fileConfig := &config.FileConfig{}
	if opts.configFile != "" {
		fc, err := config.LoadFile(opts.configFile)
		if err != nil {
			return settings{}, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		fileConfig = fc
	}

	// フラグでオーバーライド（負の値もそのまま渡して Validate で弾く）
	if opts.workers != 0 {
		fileConfig.Pool.Workers = opts.workers
	}
	if opts.queueCap != 0 {
		fileConfig.Pool.QueueCapacity = opts.queueCap
	}
	if opts.policy != "" {
		fileConfig.Pool.FailurePolicy = opts.policy
	}
	if opts.addr != "" {
		fileConfig.Server.Addr = opts.addr
	}
	if opts.docRoot != "" {
		fileConfig.Server.DocRoot = opts.docRoot
	}
	if opts.acceptRate != 0 {
		fileConfig.Server.AcceptRate = opts.acceptRate
	}
	if opts.monitorAddr != "" {
		fileConfig.Monitor.Enabled = true
		fileConfig.Monitor.Addr = opts.monitorAddr
	}
	if opts.logLevel != "" {
		fileConfig.Log.Level = opts.logLevel
	}

	if err := fileConfig.Validate(); err != nil {
		return settings{}, fmt.Errorf("設定検証エラー: %w", err)
	}

	var st settings
	var err error
	if st.pool, err = fileConfig.ToPoolConfig(); err != nil {
		return settings{}, err
	}
	if st.server, err = fileConfig.ToServerConfig(); err != nil {
		return settings{}, err
	}
	if st.level, err = fileConfig.LogLevel(); err != nil {
		return settings{}, err
	}
	if fileConfig.Monitor.Enabled {
		st.monitorAddr = fileConfig.Monitor.Addr
	}
	return st, nil
}

// startPool はプールとモニターを起動する
func startPool(ctx context.Context, st settings) (*worker.Pool, error) {
	bus := events.NewBus()
	st.pool.Bus = bus

	pool, err := worker.NewWithConfig(st.pool)
	if err != nil {
		bus.Close()
		return nil, err
	}

	if st.monitorAddr != "" {
		monitor := api.NewServer(st.monitorAddr, pool, bus)
		go func() {
			if err := monitor.Start(ctx); err != nil {
				logger.Error("api", "モニターエラー: %v", err)
			}
		}()
	}
	return pool, nil
}

// runServer はリクエストサーバーを起動し、終了時にプールを排出する
func runServer(ctx context.Context, st settings) error {
	pool, err := startPool(ctx, st)
	if err != nil {
		return err
	}
	defer pool.Shutdown()

	fmt.Println("dispatchd - worker pool request dispatcher")
	fmt.Println("=========================================")
	fmt.Printf("Listen: %s, Workers: %d, Policy: %s\n", st.server.Addr, pool.Size(), pool.Policy())
	if st.monitorAddr != "" {
		fmt.Printf("Monitor: http://%s\n", st.monitorAddr)
	}
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	srv := server.New(pool, st.server, logger.Default)
	return srv.ListenAndServe(ctx)
}

// runBench は合成ジョブを投入して結果を表示する
func runBench(ctx context.Context, st settings, cfg loadgen.Config) error {
	pool, err := startPool(ctx, st)
	if err != nil {
		return err
	}
	defer pool.Shutdown()

	gen := loadgen.New(pool, cfg)
	snap, err := gen.RunRequests(ctx)
	if snap != nil {
		fmt.Println("=========================================")
		fmt.Printf("Workers:     %d (alive %d)\n", pool.Size(), pool.Alive())
		fmt.Printf("Submitted:   %d\n", snap.Submitted)
		fmt.Printf("Completed:   %d\n", snap.Completed)
		fmt.Printf("Failed:      %d\n", snap.Failed)
		fmt.Printf("Throughput:  %.2f jobs/s\n", snap.Throughput)
		fmt.Printf("Avg run:     %v\n", snap.AverageRunTime)
		fmt.Printf("P99 run:     %v\n", snap.P99RunTime)
		fmt.Printf("Elapsed:     %v\n", snap.Elapsed)
		fmt.Println("=========================================")
	}
	return err
}
