// Package node is the network server: it accepts RESP clients on the
// scheduler's loops and executes their commands on dispatcher queues.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fzft/go-avocado/config"
	"github.com/fzft/go-avocado/db"
	"github.com/fzft/go-avocado/dispatcher"
	"github.com/fzft/go-avocado/scheduler"
)

const mainLoop scheduler.EventLoop = 0

var ErrServerClosed = errors.New("node: server closed")

type serverStats struct {
	connections    atomic.Int64
	rejectedConns  atomic.Int64
	commands       atomic.Int64
	protocolErrors atomic.Int64
	expiredByCron  atomic.Int64
}

type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runID   string
	pid     int
	started time.Time

	db    *db.RedisDb
	sched *scheduler.Scheduler
	disp  *dispatcher.Dispatcher

	listenFd  int
	addr      *net.TCPAddr
	listenTok scheduler.EventToken
	cronTok   scheduler.EventToken
	sigToks   []scheduler.EventToken

	mu      sync.Mutex
	clients *db.List[*Client]

	nextClientID atomic.Uint64
	nextLoop     atomic.Uint64
	running      atomic.Bool
	stopping     atomic.Bool
	stats        serverStats

	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
}

// NewServer builds the scheduler, the dispatcher queues and the keyspace
// described by cfg. Nothing runs before Start.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sched, err := scheduler.New(scheduler.Config{
		Concurrency: cfg.Scheduler.Concurrency,
		Backend:     cfg.Scheduler.BackendHint(),
		Logger:      logger.Named("scheduler"),
	})
	if err != nil {
		return nil, err
	}

	disp := dispatcher.New(logger.Named("dispatcher"))
	for _, q := range cfg.Dispatcher.Queues {
		disp.AddQueue(q.Name, q.Threads, dispatcher.WithMaxReady(q.MaxReady))
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		runID:    uuid.NewString(),
		pid:      os.Getpid(),
		db:       db.New(0),
		sched:    sched,
		disp:     disp,
		listenFd: -1,
		clients:  db.NewList[*Client](),
		done:     make(chan struct{}),
	}, nil
}

// Start binds the listener and starts the workers and the loops.
func (s *Server) Start() error {
	if s.stopping.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("node: server already started")
	}
	s.started = time.Now()

	fd, addr, err := listenTCP(s.cfg.Server.Addr())
	if err != nil {
		s.logger.Error("listen error", zap.String("addr", s.cfg.Server.Addr()), zap.Error(err))
		return s.abort(fmt.Errorf("node: listen %s: %w", s.cfg.Server.Addr(), err))
	}
	s.listenFd, s.addr = fd, addr

	if err := s.disp.Start(); err != nil {
		return s.abort(err)
	}

	if s.listenTok, err = s.sched.InstallSocketEvent(mainLoop, scheduler.EventSocketRead, &listenTask{srv: s, fd: fd}, fd); err != nil {
		return s.abort(err)
	}
	interval := time.Second / time.Duration(s.cfg.Server.Hz)
	if s.cronTok, err = s.sched.InstallPeriodicEvent(mainLoop, &cronTask{srv: s}, interval, interval); err != nil {
		return s.abort(err)
	}
	for _, sig := range []os.Signal{syscall.SIGINT, syscall.SIGTERM} {
		tok, err := s.sched.InstallSignalEvent(mainLoop, &signalTask{srv: s, sig: sig}, sig)
		if err != nil {
			return s.abort(err)
		}
		s.sigToks = append(s.sigToks, tok)
	}

	if err := s.sched.Start(); err != nil {
		return s.abort(err)
	}

	s.logger.Info("server started",
		zap.Stringer("addr", s.addr),
		zap.String("run_id", s.runID),
		zap.Int("loops", s.sched.NumLoops()),
		zap.Strings("queues", s.disp.Queues()))
	return nil
}

func (s *Server) abort(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownGrace())
	defer cancel()
	return multierr.Append(err, s.Shutdown(ctx))
}

// Run starts the server and blocks until it has shut down.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.Wait()
}

// Wait blocks until a shutdown, triggered by a signal or by Shutdown, is complete.
func (s *Server) Wait() error {
	<-s.done
	return s.shutdownErr
}

// Addr is the bound listener address, nil before Start.
func (s *Server) Addr() *net.TCPAddr { return s.addr }

func (s *Server) DB() *db.RedisDb { return s.db }

func (s *Server) RunID() string { return s.runID }

// Shutdown stops accepting connections, lets the dispatcher finish or
// discard its jobs within ctx, stops the loops and finally closes every
// client. Concurrent and repeated calls wait for the first one.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.stopping.Store(true)
		s.logger.Info("shutting down server")

		var err error
		if s.listenTok != 0 {
			s.sched.UninstallEvent(s.listenTok)
		}
		if s.listenFd >= 0 {
			err = multierr.Append(err, CloseFd(s.listenFd))
		}

		if derr := s.disp.Shutdown(ctx); derr != nil {
			s.logger.Warn("dispatcher did not stop in time", zap.Error(derr))
			err = multierr.Append(err, derr)
		}

		if s.cronTok != 0 {
			s.sched.UninstallEvent(s.cronTok)
		}
		for _, tok := range s.sigToks {
			s.sched.UninstallEvent(tok)
		}
		err = multierr.Append(err, s.sched.Shutdown())

		// the loops are gone, so the clients can be closed from here
		for _, c := range s.clientList() {
			c.close()
		}

		s.shutdownErr = err
		close(s.done)
		s.logger.Info("server stopped", zap.Error(err))
	})
	<-s.done
	return s.shutdownErr
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	c.node = s.clients.AddNodeTail(c)
	s.mu.Unlock()
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.node != nil {
		_ = s.clients.RemoveNode(c.node)
		c.node = nil
	}
}

func (s *Server) numClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients.Len()
}

func (s *Server) clientList() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Client, 0, s.clients.Len())
	it := s.clients.Iter(db.DIRECTION_HEAD)
	for n := it.Next(); n != nil; n = it.Next() {
		out = append(out, n.Value)
	}
	return out
}
