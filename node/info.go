package node

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fzft/go-avocado/db"
	"github.com/fzft/go-avocado/version"
)

type infoSection struct {
	name  string
	title string
	dflt  bool
	write func(s *Server, b *strings.Builder)
}

var infoSections = []infoSection{
	{"server", "Server", true, (*Server).writeServerInfo},
	{"clients", "Clients", true, (*Server).writeClientsInfo},
	{"memory", "Memory", true, (*Server).writeMemoryInfo},
	{"stats", "Stats", true, (*Server).writeStatsInfo},
	{"scheduler", "Scheduler", false, (*Server).writeSchedulerInfo},
	{"dispatcher", "Dispatcher", false, (*Server).writeDispatcherInfo},
}

// Info renders the server owned INFO sections. section is lower case;
// "default", "all" and "everything" select several sections, unknown
// names select none.
func (s *Server) Info(section string) string {
	var b strings.Builder
	all := section == "all" || section == "everything"
	for _, sec := range infoSections {
		if !(all || sec.name == section || (sec.dflt && section == "default")) {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\r\n")
		}
		fmt.Fprintf(&b, "# %s\r\n", sec.title)
		sec.write(s, &b)
	}
	return b.String()
}

func (s *Server) writeServerInfo(b *strings.Builder) {
	uptime := time.Since(s.started)
	port := s.cfg.Server.Port
	if s.addr != nil {
		port = s.addr.Port
	}
	fmt.Fprintf(b, "avocado_version:%s\r\n", version.Version)
	fmt.Fprintf(b, "avocado_git_sha1:%s\r\n", version.GitSHA1())
	fmt.Fprintf(b, "avocado_git_dirty:%s\r\n", version.GitDirty())
	fmt.Fprintf(b, "avocado_build_id:%s\r\n", version.BuildIDRaw())
	fmt.Fprintf(b, "os:%s %s\r\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(b, "go_version:%s\r\n", runtime.Version())
	fmt.Fprintf(b, "process_id:%d\r\n", s.pid)
	fmt.Fprintf(b, "run_id:%s\r\n", s.runID)
	fmt.Fprintf(b, "tcp_port:%d\r\n", port)
	fmt.Fprintf(b, "uptime_in_seconds:%d\r\n", int64(uptime/time.Second))
	fmt.Fprintf(b, "uptime_in_days:%d\r\n", int64(uptime/(24*time.Hour)))
	fmt.Fprintf(b, "hz:%d\r\n", s.cfg.Server.Hz)
}

func (s *Server) writeClientsInfo(b *strings.Builder) {
	fmt.Fprintf(b, "connected_clients:%d\r\n", s.numClients())
	fmt.Fprintf(b, "maxclients:%d\r\n", s.cfg.Server.MaxClients)
	fmt.Fprintf(b, "max_idle_time:%s\r\n", s.cfg.Server.IdleTimeout())
}

func (s *Server) writeMemoryInfo(b *strings.Builder) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	fmt.Fprintf(b, "used_memory:%d\r\n", db.UsedMemory())
	fmt.Fprintf(b, "used_memory_heap:%d\r\n", ms.HeapAlloc)
	fmt.Fprintf(b, "used_memory_sys:%d\r\n", ms.Sys)
	fmt.Fprintf(b, "gc_cycles:%d\r\n", ms.NumGC)
}

func (s *Server) writeStatsInfo(b *strings.Builder) {
	st := s.db.Stats()
	fmt.Fprintf(b, "total_connections_received:%d\r\n", s.stats.connections.Load())
	fmt.Fprintf(b, "total_commands_processed:%d\r\n", s.stats.commands.Load())
	fmt.Fprintf(b, "rejected_connections:%d\r\n", s.stats.rejectedConns.Load())
	fmt.Fprintf(b, "total_error_replies_protocol:%d\r\n", s.stats.protocolErrors.Load())
	fmt.Fprintf(b, "expired_keys:%d\r\n", st.Expired)
	fmt.Fprintf(b, "expired_keys_by_cron:%d\r\n", s.stats.expiredByCron.Load())
	fmt.Fprintf(b, "keyspace_hits:%d\r\n", st.Hits)
	fmt.Fprintf(b, "keyspace_misses:%d\r\n", st.Misses)
}

func (s *Server) writeSchedulerInfo(b *strings.Builder) {
	st := s.sched.Stats()
	fmt.Fprintf(b, "backend:%s\r\n", st.Backend)
	fmt.Fprintf(b, "loops:%d\r\n", st.Loops)
	fmt.Fprintf(b, "async_events:%d\r\n", st.Async)
	fmt.Fprintf(b, "socket_events:%d\r\n", st.Socket)
	fmt.Fprintf(b, "timer_events:%d\r\n", st.Timer)
	fmt.Fprintf(b, "periodic_events:%d\r\n", st.Periodic)
	fmt.Fprintf(b, "signal_events:%d\r\n", st.Signal)
	fmt.Fprintf(b, "free_tokens:%d\r\n", st.FreeTokens)
}

func (s *Server) writeDispatcherInfo(b *strings.Builder) {
	for _, name := range s.disp.Queues() {
		st, ok := s.disp.QueueStatus(name)
		if !ok {
			continue
		}
		monopolized := 0
		if st.Monopolized {
			monopolized = 1
		}
		fmt.Fprintf(b, "queue_%s:threads=%d,started=%d,running=%d,waiting=%d,stopped=%d,special=%d,ready=%d,monopolized=%d\r\n",
			strings.ToLower(name), st.Threads, st.Started, st.Running, st.Waiting, st.Stopped, st.Special, st.Ready, monopolized)
	}
}
