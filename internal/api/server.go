// Package api serves the pool monitor: JSON status and metrics endpoints and
// a websocket stream of pool lifecycle events.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"dispatchd/internal/events"
	"dispatchd/internal/logger"
	"dispatchd/internal/worker"

	"golang.org/x/net/websocket"
)

const scope = "api"

// Server はモニター用 API サーバー
type Server struct {
	addr string
	pool *worker.Pool
	bus  *events.Bus

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しい API サーバーを作成する
// bus が nil の場合 /ws は定期ステータスのみを配信する
func NewServer(addr string, pool *worker.Pool, bus *events.Bus) *Server {
	return &Server{
		addr:      addr,
		pool:      pool,
		bus:       bus,
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))
	return mux
}

// Start はサーバーを開始し、ctx が終わるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.startLoops(ctx)

	logger.Info(scope, "monitor listening on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) startLoops(ctx context.Context) {
	go s.broadcastLoop(ctx)
	if s.bus != nil {
		go s.forwardEvents(ctx, s.bus.Subscribe())
	}
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	State   string `json:"state"`
	Size    int    `json:"size"`
	Alive   int    `json:"alive"`
	Pending int    `json:"pending"`
	Policy  string `json:"policy"`
}

func (s *Server) status() StatusResponse {
	st := s.pool.Stats()
	return StatusResponse{
		State:   st.State,
		Size:    st.Size,
		Alive:   st.Alive,
		Pending: st.Pending,
		Policy:  st.Policy,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	Submitted     uint64  `json:"submitted"`
	Rejected      uint64  `json:"rejected"`
	Completed     uint64  `json:"completed"`
	Failed        uint64  `json:"failed"`
	Throughput    float64 `json:"throughput"`
	AvgRunTimeMs  float64 `json:"avg_run_time_ms"`
	P99RunTimeMs  float64 `json:"p99_run_time_ms"`
	FailureRate   float64 `json:"failure_rate"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.pool.Metrics().Snapshot()
	s.writeJSON(w, MetricsResponse{
		Submitted:     snap.Submitted,
		Rejected:      snap.Rejected,
		Completed:     snap.Completed,
		Failed:        snap.Failed,
		Throughput:    snap.Throughput,
		AvgRunTimeMs:  float64(snap.AverageRunTime) / float64(time.Millisecond),
		P99RunTimeMs:  float64(snap.P99RunTime) / float64(time.Millisecond),
		FailureRate:   snap.FailureRate,
		UptimeSeconds: snap.Elapsed.Seconds(),
	})
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// クライアントが切断するまで保持
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// forwardEvents はバスのイベントを websocket クライアントへ転送する
func (s *Server) forwardEvents(ctx context.Context, ch <-chan events.Event) {
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.clientCount() == 0 {
				continue
			}
			s.broadcast(map[string]any{
				"type":   "status",
				"status": s.status(),
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error(scope, "Failed to encode JSON: %v", err)
	}
}
