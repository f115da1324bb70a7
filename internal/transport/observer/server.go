package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelcraft.ai/gametest/internal/observerproto"
	"voxelcraft.ai/gametest/internal/protocol"
)

// Catalog is the part of the test registry the bootstrap endpoint reports.
type Catalog interface {
	Suites() []string
	Len() int
}

// Server streams run events to websocket observers. It is a runner.Sink:
// events are encoded once and queued to each subscriber without blocking;
// a subscriber that falls behind loses events.
type Server struct {
	catalog Catalog
	log     *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu       sync.Mutex
	subs     map[string]*subscriber
	runSuite map[string]string
}

type subscriber struct {
	out    chan []byte
	suites map[string]bool
	steps  bool
}

func NewServer(catalog Catalog, logger *log.Logger) *Server {
	return &Server{
		catalog: catalog,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs:     map[string]*subscriber{},
		runSuite: map[string]string{},
	}
}

// Subscribers returns the number of connected observers.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped counts events discarded because a subscriber queue was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) RunStarted(m protocol.RunStartedMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runSuite[m.RunID] = m.Suite
	s.publishLocked(m.Suite, false, m)
}

func (s *Server) StepExecuted(m protocol.StepMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(s.runSuite[m.RunID], true, m)
}

func (s *Server) RunFinished(m protocol.RunFinishedMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runSuite, m.RunID)
	s.publishLocked(m.Suite, false, m)
}

func (s *Server) BatchFinished(m protocol.SummaryMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked("", false, m)
}

// publishLocked sends v to every subscriber whose filter admits it. An empty
// suite reaches everyone.
func (s *Server) publishLocked(suite string, step bool, v any) {
	if len(s.subs) == 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		if s.log != nil {
			s.log.Printf("observer: encode: %v", err)
		}
		return
	}
	for _, sub := range s.subs {
		if step && !sub.steps {
			continue
		}
		if suite != "" && len(sub.suites) > 0 && !sub.suites[suite] {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion:    observerproto.Version,
			RunProtocolVersion: protocol.Version,
			Suites:             []string{},
		}
		if s.catalog != nil {
			resp.Suites = s.catalog.Suites()
			resp.Tests = s.catalog.Len()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, 4096)
		s.mu.Lock()
		s.subs[sid] = &subscriber{out: out, suites: suiteSet(sub.Suites), steps: sub.Steps}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			s.mu.Lock()
			if cur := s.subs[sid]; cur != nil {
				cur.suites = suiteSet(sub.Suites)
				cur.steps = sub.Steps
			}
			s.mu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func suiteSet(suites []string) map[string]bool {
	if len(suites) == 0 {
		return nil
	}
	m := make(map[string]bool, len(suites))
	for _, s := range suites {
		if s = strings.TrimSpace(s); s != "" {
			m[s] = true
		}
	}
	return m
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
