package node

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/fzft/go-avocado/scheduler"
)

// cronTask runs hz times per second on the main loop.
type cronTask struct {
	srv    *Server
	cycles int
}

func (t *cronTask) IsActive() bool { return !t.srv.stopping.Load() }

func (t *cronTask) HandleEvent(_ scheduler.EventToken, _ scheduler.EventType) {
	s := t.srv
	t.cycles++

	if n := s.db.ActiveExpire(s.cfg.Server.ActiveExpireLimit); n > 0 {
		s.stats.expiredByCron.Add(int64(n))
		s.logger.Debug("expired keys", zap.Int("keys", n))
	}

	// once a second
	if t.cycles%s.cfg.Server.Hz == 0 {
		s.disp.ReportStatus()
	}
}

// signalTask turns SIGINT and SIGTERM into a graceful shutdown.
type signalTask struct {
	srv *Server
	sig os.Signal
}

func (t *signalTask) IsActive() bool { return !t.srv.stopping.Load() }

func (t *signalTask) HandleEvent(_ scheduler.EventToken, _ scheduler.EventType) {
	s := t.srv
	s.logger.Info("received signal, scheduling shutdown", zap.Stringer("signal", t.sig))

	// Shutdown joins the loop threads, this one included.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownGrace())
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown finished with errors", zap.Error(err))
		}
	}()
}
