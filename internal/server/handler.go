package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const maxBodySize = 1 << 20

var errMalformedRequest = errors.New("malformed request line")

type request struct {
	Method  string
	Path    string
	Proto   string
	Headers map[string]string
	Body    []byte
}

type response struct {
	Status      string
	ContentType string
	Body        string
}

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 NOT FOUND"

	fallbackIndex    = "<h1>dispatchd</h1>"
	fallbackHello    = "<h1>Hello World!</h1>"
	fallbackNotFound = "<h1>404 - Not Found</h1>"
)

// readRequest はリクエスト行・ヘッダ・Content-Length 分のボディを読む
func readRequest(r *bufio.Reader) (*request, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read request line: %w", err)
	}
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", errMalformedRequest, strings.TrimSpace(line))
	}

	req := &request{
		Method:  parts[0],
		Path:    parts[1],
		Proto:   parts[2],
		Headers: make(map[string]string),
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		req.Headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	length, _ := strconv.Atoi(req.Headers["content-length"])
	if length > maxBodySize {
		return nil, fmt.Errorf("body too large: %d bytes", length)
	}
	if length > 0 {
		req.Body = make([]byte, length)
		if _, err := io.ReadFull(r, req.Body); err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	return req, nil
}

// handleConn はワーカー上で 1 接続を処理する
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	req, err := readRequest(bufio.NewReader(conn))
	if err != nil {
		s.log.Warn(scope, "%s: %v", conn.RemoteAddr(), err)
		return
	}
	s.log.Debug(scope, "%s %s %s", conn.RemoteAddr(), req.Method, req.Path)

	resp := s.route(req)
	if _, err := io.WriteString(conn, resp.String()); err != nil {
		s.log.Warn(scope, "failed to write response: %v", err)
	}
}

func (s *Server) route(req *request) response {
	if req.Method != "GET" {
		return s.page(statusNotFound, "404.html", fallbackNotFound)
	}

	switch req.Path {
	case "/":
		return s.page(statusOK, "index.html", fallbackIndex)
	case "/sleep":
		time.Sleep(s.config.SleepDelay)
		return s.page(statusOK, "hello.html", fallbackHello)
	case "/stats":
		return response{Status: statusOK, ContentType: "text/plain", Body: s.statsText()}
	default:
		return s.page(statusNotFound, "404.html", fallbackNotFound)
	}
}

// page は DocRoot のファイルを返し、読めなければ fallback を返す
func (s *Server) page(status, name, fallback string) response {
	body := fallback
	data, err := os.ReadFile(filepath.Join(s.config.DocRoot, name))
	if err != nil {
		s.log.Debug(scope, "failed to read %s: %v", name, err)
	} else {
		body = string(data)
	}
	return response{Status: status, ContentType: "text/html", Body: body}
}

func (s *Server) statsText() string {
	st := s.pool.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", st.State)
	fmt.Fprintf(&b, "size: %d\n", st.Size)
	fmt.Fprintf(&b, "alive: %d\n", st.Alive)
	fmt.Fprintf(&b, "pending: %d\n", st.Pending)
	fmt.Fprintf(&b, "completed: %d\n", st.Jobs.Completed)
	fmt.Fprintf(&b, "failed: %d\n", st.Jobs.Failed)
	return b.String()
}

func (r response) String() string {
	return fmt.Sprintf("%s\r\nContent-Length: %d\r\nContent-Type: %s\r\n\r\n%s",
		r.Status, len(r.Body), r.ContentType, r.Body)
}
