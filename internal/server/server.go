// Package server hosts the accept loop, the bounded worker pool that
// multiplexes connections, the active-eviction background task, and
// the per-connection dispatch loop tying the wire codec and command
// dispatcher together.
package server

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"redikv/internal/command"
	"redikv/internal/config"
	"redikv/internal/metrics"
	"redikv/internal/resp"
	"redikv/internal/store"
)

// DefaultWorkerCount is the worker pool size New sets; callers may
// change Server.WorkerCount before calling Listen.
const DefaultWorkerCount = 4

// evictionInterval is the fixed cadence of the active-eviction task.
// Deliberately not configurable: the spec this server implements fixes
// it by design.
const evictionInterval = time.Second

// Server owns the shared store and configuration, the listener, the
// worker pool, and the active-eviction task.
type Server struct {
	Store   *store.Store
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	WorkerCount int

	listener             net.Listener
	pool                 *pool
	stopEvic             chan struct{}
	lastPassiveEvictions atomic.Int64
}

// New builds a Server ready to Serve. If logger or m is nil, a no-op
// logger / private metrics registry is used.
func New(s *store.Store, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Server{
		Store:       s,
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		WorkerCount: DefaultWorkerCount,
	}
}

// Listen binds the configured port and starts the worker pool and the
// eviction task, without yet accepting connections. Call Serve to run
// the accept loop.
func (s *Server) Listen() error {
	addr := "127.0.0.1:" + portString(s.Config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "server: listen on %s", addr)
	}
	s.listener = ln

	s.pool = newPool(s.WorkerCount, s.handleConnection)
	s.stopEvic = make(chan struct{})
	go s.runEvictionLoop()

	s.Logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Serve accepts connections until the listener is closed. It blocks;
// call Listen first.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return errors.Wrap(err, "server: accept")
		}
		s.Metrics.ConnectionsAccepted.Inc()
		s.pool.submit(conn)
	}
}

// ListenAndServe is Listen followed by Serve; it blocks until the
// listener is closed.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Addr returns the listener's bound address, or nil before Listen has
// bound it; mainly useful in tests that bind port 0 and need to
// discover the actual port chosen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting new connections, stops the eviction task, and
// waits for the worker pool to drain in-flight connections.
func (s *Server) Close() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	if s.stopEvic != nil {
		close(s.stopEvic)
	}
	if s.pool != nil {
		s.pool.stop()
	}
	return err
}

func (s *Server) runEvictionLoop() {
	ticker := time.NewTicker(evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopEvic:
			return
		case <-ticker.C:
			if _, _, evicted := s.Store.RandomEvict(); evicted {
				s.Metrics.ActiveEvictions.Inc()
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	connID := uuid.New().String()
	log := s.Logger.With(zap.String("conn_id", connID))
	log.Debug("connection accepted", zap.String("remote", conn.RemoteAddr().String()))

	disp := command.New(s.Store, s.Config)
	fr := resp.NewFrameReader(conn)
	w := newReplyWriter(conn)

	for {
		frameBytes, err := fr.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug("connection closed by peer")
				return
			}
			if errors.Is(err, resp.ErrMalformedFrame) {
				if err := w.write(resp.Error("ERR Protocol error: " + err.Error())); err != nil {
					log.Debug("write error, closing connection", zap.Error(err))
					return
				}
				continue
			}
			log.Debug("frame read error, closing connection", zap.Error(err))
			return
		}

		reply := disp.Dispatch(frameBytes)
		if len(frameBytes) > 0 {
			s.Metrics.CommandsExecuted.WithLabelValues(string(frameBytes[0])).Inc()
		}
		s.recordPassiveEvictions()
		s.Metrics.KeyCount.Set(float64(s.Store.Len()))

		if err := w.write(reply); err != nil {
			log.Debug("write error, closing connection", zap.Error(err))
			return
		}
	}
}

// recordPassiveEvictions folds the store's cumulative passive-eviction
// count into the prometheus counter, which only supports incrementing.
func (s *Server) recordPassiveEvictions() {
	total := s.Store.PassiveEvictionCount()
	for {
		prev := s.lastPassiveEvictions.Load()
		if total <= prev {
			return
		}
		if s.lastPassiveEvictions.CompareAndSwap(prev, total) {
			s.Metrics.PassiveEvictions.Add(float64(total - prev))
			return
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
