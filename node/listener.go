package node

import (
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/fzft/go-avocado/resp"
	"github.com/fzft/go-avocado/scheduler"
)

const listenBacklog = 511

// listenTCP opens a non-blocking listening socket for addr and returns its
// fd together with the address actually bound.
func listenTCP(addr string) (int, *net.TCPAddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, err
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil || tcpAddr.IP == nil {
		inet4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 != nil {
			copy(inet4.Addr[:], ip4)
		}
		sa = inet4
	} else {
		family = unix.AF_INET6
		inet6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(inet6.Addr[:], tcpAddr.IP.To16())
		sa = inet6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, os.NewSyscallError("socket", err)
	}
	fail := func(call string, err error) (int, *net.TCPAddr, error) {
		_ = unix.Close(fd)
		return -1, nil, os.NewSyscallError(call, err)
	}

	unix.CloseOnExec(fd)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("setnonblock", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	return fd, sockaddrToTCPAddr(bound), nil
}

// listenTask accepts connections on the main loop and spreads them over
// all loops round-robin.
type listenTask struct {
	srv *Server
	fd  int
}

func (t *listenTask) IsActive() bool {
	return !t.srv.stopping.Load()
}

func (t *listenTask) HandleEvent(_ scheduler.EventToken, events scheduler.EventType) {
	if events&scheduler.EventSocketRead == 0 {
		return
	}
	for {
		if !t.accept() {
			return
		}
	}
}

// accept takes one pending connection and reports whether another attempt
// may succeed.
func (t *listenTask) accept() bool {
	s := t.srv
	connFd, sa, err := unix.Accept(t.fd)
	if err != nil {
		switch {
		case err == unix.EINTR || err == unix.ECONNABORTED:
			return true
		case IsTemporaryError(err):
			// This isn't necessarily an error, just no more connections to accept right now.
		default:
			s.logger.Error("accept error", zap.Error(err))
		}
		return false
	}
	addr := sockaddrString(sa)

	if err := prepareConn(connFd); err != nil {
		s.logger.Warn("cannot prepare connection", zap.String("addr", addr), zap.Error(err))
		_ = unix.Close(connFd)
		return true
	}

	if s.numClients() >= s.cfg.Server.MaxClients {
		s.stats.rejectedConns.Add(1)
		_, _ = unix.Write(connFd, resp.AppendError(nil, "max number of clients reached"))
		_ = unix.Close(connFd)
		s.logger.Warn("rejecting connection", zap.String("addr", addr), zap.Int("max_clients", s.cfg.Server.MaxClients))
		return true
	}

	loop := scheduler.EventLoop(s.nextLoop.Add(1) % uint64(s.sched.NumLoops()))
	if _, err := s.openClient(connFd, addr, loop); err != nil {
		s.logger.Error("cannot register connection", zap.String("addr", addr), zap.Error(err))
		_ = unix.Close(connFd)
	}
	return true
}

func prepareConn(fd int) error {
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("set nonblock error for fd %d: %w", fd, err)
	}
	// not every socket is TCP; ignore the error
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return nil
}
