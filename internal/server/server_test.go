package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dispatchd/internal/logger"
	"dispatchd/internal/worker"
)

func quietLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError)
}

// startServer は 127.0.0.1 の空きポートでサーバーを起動する
func startServer(t *testing.T, config Config) (*Server, *worker.Pool, context.CancelFunc, <-chan error) {
	t.Helper()

	pool, err := worker.New(2, worker.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(pool.Shutdown)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := New(pool, config, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, ln)
	}()
	return srv, pool, cancel, errCh
}

func roundTrip(t *testing.T, addr net.Addr, raw string) string {
	t.Helper()
	resp, err := send(addr, raw)
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	return resp
}

func send(addr net.Addr, raw string) (string, error) {
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := io.WriteString(conn, raw); err != nil {
		return "", err
	}
	data, err := io.ReadAll(conn)
	return string(data), err
}

func waitAddr(t *testing.T, srv *Server) net.Addr {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if addr := srv.Addr(); addr != nil {
			return addr
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server did not start")
	return nil
}

func testConfig(t *testing.T) Config {
	config := DefaultConfig()
	config.DocRoot = t.TempDir()
	config.SleepDelay = 10 * time.Millisecond
	config.ReadTimeout = time.Second
	return config
}

func TestServeIndexFallback(t *testing.T) {
	srv, _, _, _ := startServer(t, testConfig(t))
	resp := roundTrip(t, waitAddr(t, srv), "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")

	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("expected 200, got %q", resp)
	}
	if !strings.Contains(resp, "Content-Length: 18\r\n") {
		t.Errorf("expected content length of fallback page, got %q", resp)
	}
	if !strings.HasSuffix(resp, fallbackIndex) {
		t.Errorf("expected fallback body, got %q", resp)
	}
}

func TestServeDocRootFiles(t *testing.T) {
	config := testConfig(t)
	if err := os.WriteFile(filepath.Join(config.DocRoot, "hello.html"), []byte("<p>hi</p>"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(config.DocRoot, "404.html"), []byte("<p>missing</p>"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	srv, _, _, _ := startServer(t, config)
	addr := waitAddr(t, srv)

	resp := roundTrip(t, addr, "GET /sleep HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(resp, statusOK) || !strings.HasSuffix(resp, "<p>hi</p>") {
		t.Errorf("unexpected /sleep response: %q", resp)
	}

	resp = roundTrip(t, addr, "GET /nope HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(resp, statusNotFound) || !strings.HasSuffix(resp, "<p>missing</p>") {
		t.Errorf("unexpected 404 response: %q", resp)
	}
}

func TestServeStats(t *testing.T) {
	srv, _, _, _ := startServer(t, testConfig(t))
	resp := roundTrip(t, waitAddr(t, srv), "GET /stats HTTP/1.1\r\n\r\n")

	for _, want := range []string{"Content-Type: text/plain", "state: Running", "size: 2"} {
		if !strings.Contains(resp, want) {
			t.Errorf("expected %q in %q", want, resp)
		}
	}
}

func TestServeSlowRequestsDoNotBlockOthers(t *testing.T) {
	config := testConfig(t)
	config.SleepDelay = 300 * time.Millisecond
	srv, _, _, _ := startServer(t, config)
	addr := waitAddr(t, srv)

	slow := make(chan error, 1)
	go func() {
		_, err := send(addr, "GET /sleep HTTP/1.1\r\n\r\n")
		slow <- err
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	resp := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("fast request waited behind slow one: %v", elapsed)
	}
	if !strings.HasPrefix(resp, statusOK) {
		t.Errorf("unexpected response: %q", resp)
	}
	if err := <-slow; err != nil {
		t.Errorf("slow request failed: %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv, _, cancel, errCh := startServer(t, testConfig(t))
	waitAddr(t, srv)

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeStopsWhenPoolClosed(t *testing.T) {
	srv, pool, _, errCh := startServer(t, testConfig(t))
	addr := waitAddr(t, srv)
	pool.Shutdown()

	conn, err := net.Dial("tcp", addr.String())
	if err == nil {
		conn.Close()
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after pool shutdown")
	}
}

func TestServeWithAcceptRate(t *testing.T) {
	config := testConfig(t)
	config.AcceptRate = 1000
	config.AcceptBurst = 10

	srv, _, _, _ := startServer(t, config)
	if srv.limiter == nil {
		t.Fatal("expected limiter to be configured")
	}
	addr := waitAddr(t, srv)

	for range 3 {
		if resp := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"); !strings.HasPrefix(resp, statusOK) {
			t.Errorf("unexpected response: %q", resp)
		}
	}
}

func TestReadRequest(t *testing.T) {
	raw := "POST /chat HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"
	req, err := readRequest(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "POST" || req.Path != "/chat" || req.Proto != "HTTP/1.1" {
		t.Errorf("unexpected request line: %+v", req)
	}
	if req.Headers["content-type"] != "text/plain" {
		t.Errorf("expected lower-cased header, got %v", req.Headers)
	}
	if string(req.Body) != "hello" {
		t.Errorf("expected body hello, got %q", req.Body)
	}
}

func TestReadRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed line", "GARBAGE\r\n\r\n"},
		{"truncated headers", "GET / HTTP/1.1\r\nHost: x\r\n"},
		{"short body", "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc"},
		{"body too large", "POST / HTTP/1.1\r\nContent-Length: 99999999\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readRequest(bufio.NewReader(strings.NewReader(tt.raw)))
			if err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := readRequest(bufio.NewReader(strings.NewReader("BAD\r\n\r\n")))
	if !errors.Is(err, errMalformedRequest) {
		t.Errorf("expected errMalformedRequest, got %v", err)
	}
}

func TestRouteNonGet(t *testing.T) {
	pool, err := worker.New(1, worker.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Shutdown()

	srv := New(pool, testConfig(t), quietLogger())
	resp := srv.route(&request{Method: "DELETE", Path: "/"})
	if resp.Status != statusNotFound {
		t.Errorf("expected 404 for DELETE, got %s", resp.Status)
	}
}

// flakyListener は errs 回だけ一時エラーを返し、その後クローズ扱いになる
type flakyListener struct {
	errs    int
	accepts atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	n := int(l.accepts.Add(1))
	if n <= l.errs {
		return nil, errors.New("accept: too many open files")
	}
	return nil, net.ErrClosed
}

func (l *flakyListener) Close() error { return nil }

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServeBacksOffOnAcceptErrors(t *testing.T) {
	pool, err := worker.New(1, worker.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Shutdown()

	ln := &flakyListener{errs: 3}
	srv := New(pool, testConfig(t), quietLogger())

	start := time.Now()
	if err := srv.Serve(context.Background(), ln); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	// 5ms + 10ms + 20ms
	if elapsed < 35*time.Millisecond {
		t.Errorf("expected accept retries to back off, returned after %v", elapsed)
	}
	if got := ln.accepts.Load(); got != 4 {
		t.Errorf("expected 4 accept calls, got %d", got)
	}
}

func TestServeBackoffStopsOnCancel(t *testing.T) {
	pool, err := worker.New(1, worker.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Shutdown()

	ln := &flakyListener{errs: 1 << 30}
	srv := New(pool, testConfig(t), quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel while backing off")
	}
	// 5+10+20+40ms で 50ms 以内に高々数回
	if got := ln.accepts.Load(); got > 10 {
		t.Errorf("accept loop spun %d times in 50ms", got)
	}
}

func TestNextAcceptDelay(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, minAcceptDelay},
		{minAcceptDelay, 2 * minAcceptDelay},
		{600 * time.Millisecond, maxAcceptDelay},
		{maxAcceptDelay, maxAcceptDelay},
	}

	for _, tt := range tests {
		if got := nextAcceptDelay(tt.in); got != tt.want {
			t.Errorf("nextAcceptDelay(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
