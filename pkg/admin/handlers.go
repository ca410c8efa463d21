package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgossip/internal/telemetry"
	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

// Node is the read-only view of a gossip node the admin surface reports on.
type Node interface {
	ID() uint64
	LocalAddr() net.Addr
	Peers() []string
	Fanout() int
	RelayFanout() int
	Stats() gossip.Stats
}

type Publisher interface {
	Publish(ctx context.Context, payload []byte) (uint64, error)
}

type Server struct {
	node Node
	pub  Publisher
	log  *zap.Logger
}

func NewServer(node Node, pub Publisher, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{node: node, pub: pub, log: log}
}

// Handler wires the admin endpoints, each instrumented under its own op label.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.Healthz)
	mux.Handle("/info", telemetry.Instrument("info", http.HandlerFunc(s.Info)))
	mux.Handle("/broadcast", telemetry.Instrument("broadcast", http.HandlerFunc(s.Broadcast)))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	return mux
}

// healthz returns 200 OK to indicate the node is alive.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// info writes a JSON payload with the process ID, node identity and cache sizes.
func (s *Server) Info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		PID         int          `json:"pid"`
		Now         time.Time    `json:"now"`
		ID          uint64       `json:"id"`
		Addr        string       `json:"addr"`
		Peers       []string     `json:"peers"`
		Fanout      int          `json:"fanout"`
		RelayFanout int          `json:"relay_fanout"`
		Stats       gossip.Stats `json:"stats"`
	}
	data, _ := json.Marshal(resp{
		PID:         os.Getpid(),
		Now:         time.Now(),
		ID:          s.node.ID(),
		Addr:        s.node.LocalAddr().String(),
		Peers:       s.node.Peers(),
		Fanout:      s.node.Fanout(),
		RelayFanout: s.node.RelayFanout(),
		Stats:       s.node.Stats(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// broadcast originates the request body as one gossip message.
func (s *Server) Broadcast(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost && req.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, req.Body, gossip.MaxDatagramSize))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(payload) == 0 {
		http.Error(w, "empty payload", http.StatusBadRequest)
		return
	}

	seq, err := s.pub.Publish(req.Context(), payload)
	if err != nil {
		s.log.Warn("http broadcast failed", zap.Uint64("seq", seq), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, gossip.ErrEnvelopeTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]uint64{"seq": seq})
}
