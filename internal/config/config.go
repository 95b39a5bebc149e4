// Package config loads dispatchd settings from YAML or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dispatchd/internal/logger"
	"dispatchd/internal/server"
	"dispatchd/internal/worker"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Pool    PoolConfig    `yaml:"pool" json:"pool"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// PoolConfig はワーカープール設定
type PoolConfig struct {
	Workers       int    `yaml:"workers" json:"workers"`
	QueueCapacity int    `yaml:"queue_capacity" json:"queue_capacity"`
	FailurePolicy string `yaml:"failure_policy" json:"failure_policy"`
}

// ServerConfig はリクエストサーバー設定
type ServerConfig struct {
	Addr        string  `yaml:"addr" json:"addr"`
	DocRoot     string  `yaml:"doc_root" json:"doc_root"`
	AcceptRate  float64 `yaml:"accept_rate" json:"accept_rate"`
	AcceptBurst int     `yaml:"accept_burst" json:"accept_burst"`
	ReadTimeout string  `yaml:"read_timeout" json:"read_timeout"`
	SleepDelay  string  `yaml:"sleep_delay" json:"sleep_delay"`
}

// MonitorConfig はモニター API 設定
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToPoolConfig は worker.Config に変換する（未指定の項目はデフォルト値）
func (f *FileConfig) ToPoolConfig() (worker.Config, error) {
	config := worker.DefaultConfig()

	if f.Pool.Workers > 0 {
		config.NumWorkers = f.Pool.Workers
	}
	if f.Pool.QueueCapacity > 0 {
		config.QueueCapacity = f.Pool.QueueCapacity
	}
	policy, err := worker.ParseFailurePolicy(f.Pool.FailurePolicy)
	if err != nil {
		return config, err
	}
	config.FailurePolicy = policy

	return config, nil
}

// ToServerConfig は server.Config に変換する
func (f *FileConfig) ToServerConfig() (server.Config, error) {
	sc := f.Server
	config := server.DefaultConfig()

	if sc.Addr != "" {
		config.Addr = sc.Addr
	}
	if sc.DocRoot != "" {
		config.DocRoot = sc.DocRoot
	}
	if sc.AcceptRate > 0 {
		config.AcceptRate = sc.AcceptRate
	}
	if sc.AcceptBurst > 0 {
		config.AcceptBurst = sc.AcceptBurst
	}
	if sc.ReadTimeout != "" {
		d, err := time.ParseDuration(sc.ReadTimeout)
		if err != nil {
			return config, fmt.Errorf("invalid read_timeout: %w", err)
		}
		config.ReadTimeout = d
	}
	if sc.SleepDelay != "" {
		d, err := time.ParseDuration(sc.SleepDelay)
		if err != nil {
			return config, fmt.Errorf("invalid sleep_delay: %w", err)
		}
		config.SleepDelay = d
	}

	return config, nil
}

// LogLevel はログレベルを返す
func (f *FileConfig) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(f.Log.Level)
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	if f.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must be non-negative")
	}
	if f.Pool.QueueCapacity < 0 {
		return fmt.Errorf("pool.queue_capacity must be non-negative")
	}
	if _, err := worker.ParseFailurePolicy(f.Pool.FailurePolicy); err != nil {
		return fmt.Errorf("pool.failure_policy: %w", err)
	}
	if f.Server.AcceptRate < 0 {
		return fmt.Errorf("server.accept_rate must be non-negative")
	}
	if f.Server.AcceptBurst < 0 {
		return fmt.Errorf("server.accept_burst must be non-negative")
	}
	if f.Monitor.Enabled && f.Monitor.Addr == "" {
		return fmt.Errorf("monitor.addr is required when monitor is enabled")
	}
	if _, err := f.LogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
