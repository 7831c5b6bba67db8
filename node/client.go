package node

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fzft/go-avocado/commands"
	"github.com/fzft/go-avocado/config"
	"github.com/fzft/go-avocado/db"
	"github.com/fzft/go-avocado/dispatcher"
	"github.com/fzft/go-avocado/resp"
	"github.com/fzft/go-avocado/scheduler"
)

// Client is one connection. Its socket, async and idle timer watchers all
// live on the same loop, so everything but the job hand-off below runs on
// that loop's thread.
//
// At most one command of a client executes at a time. Requests pipelined
// behind it wait in pending and are submitted in order as replies come back.
type Client struct {
	id      uint64
	srv     *Server
	conn    *connection
	loop    scheduler.EventLoop
	created time.Time
	logger  *zap.Logger

	asyncTok scheduler.EventToken
	// zero until start ran on the loop
	sockTok scheduler.EventToken
	idleTok scheduler.EventToken

	queryBuf        []byte
	pending         [][]string
	inFlight        *commandJob
	protoErr        []byte
	writing         bool
	closeAfterReply bool
	lastInteraction atomic.Int64 // unix ms
	commandsDone    atomic.Int64

	// completed carries the reply of the in-flight job from the worker to the loop
	mu        sync.Mutex
	completed *commandJob

	node   *db.ListNode[*Client]
	closed atomic.Bool
}

func (c *Client) ID() uint64 { return c.id }

func (c *Client) Addr() string { return c.conn.Ip() }

func (c *Client) IsActive() bool { return !c.closed.Load() }

func (c *Client) HandleEvent(_ scheduler.EventToken, events scheduler.EventType) {
	switch {
	case events&scheduler.EventAsync != 0:
		if c.sockTok == 0 {
			c.start()
			return
		}
		c.collectReply()
	case events&scheduler.EventTimer != 0:
		c.checkIdle()
	default:
		if events&scheduler.EventSocketRead != 0 {
			c.readQueryFromClient()
		}
		if events&scheduler.EventSocketWrite != 0 && !c.closed.Load() {
			c.flush()
		}
	}
}

// start installs the socket and idle watchers from the client's own loop.
func (c *Client) start() {
	sched := c.srv.sched
	var err error
	if idle := c.srv.cfg.Server.IdleTimeout(); idle > 0 {
		if c.idleTok, err = sched.InstallTimerEvent(c.loop, c, idle); err != nil {
			c.logger.Error("cannot install idle timer", zap.Error(err))
			c.close()
			return
		}
	}
	if c.sockTok, err = sched.InstallSocketEvent(c.loop, scheduler.EventSocketRead, c, c.conn.Fd()); err != nil {
		c.logger.Error("cannot watch connection", zap.Error(err))
		c.close()
		return
	}
	c.logger.Debug("new connection", zap.Int("fd", c.conn.Fd()))
}

func (c *Client) readQueryFromClient() {
	var err error
	before := len(c.queryBuf)
	c.queryBuf, err = c.conn.Read(c.queryBuf)
	if len(c.queryBuf) > before {
		c.touch()
	}

	c.processInputBuffer()
	if c.closed.Load() {
		return
	}

	switch {
	case errors.Is(err, io.EOF):
		c.logger.Debug("client closed connection")
		c.close()
		return
	case err != nil:
		c.logger.Debug("read error", zap.Error(err))
		c.close()
		return
	case len(c.queryBuf) > ProtoMaxQueryBuf:
		c.logger.Warn("closing client that reached max query buffer length", zap.Int("qbuf", len(c.queryBuf)))
		c.close()
		return
	}

	c.processPending()
	c.flush()
}

// processInputBuffer splits the query buffer into complete requests.
func (c *Client) processInputBuffer() {
	pos := 0
	for c.protoErr == nil && !c.closeAfterReply && pos < len(c.queryBuf) {
		args, n, err := resp.ReadCommand(c.queryBuf[pos:])
		if errors.Is(err, resp.ErrIncomplete) {
			break
		}
		if err != nil {
			c.srv.stats.protocolErrors.Add(1)
			c.logger.Debug("protocol error", zap.Error(err))
			c.protoErr = resp.AppendError(nil, err.Error())
			break
		}
		pos += n
		if len(args) > 0 {
			c.pending = append(c.pending, args)
		}
	}
	c.queryBuf = append(c.queryBuf[:0], c.queryBuf[pos:]...)
}

// processPending runs or submits queued requests until one is in flight.
func (c *Client) processPending() {
	for c.inFlight == nil && len(c.pending) > 0 && !c.closeAfterReply {
		argv := c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]
		c.processCommand(argv)
	}
	if len(c.pending) == 0 {
		c.pending = nil
		// the error is answered after every request that preceded it
		if c.inFlight == nil && c.protoErr != nil {
			c.addReply(c.protoErr)
			c.protoErr = nil
			c.closeAfterReply = true
		}
	}
}

func (c *Client) processCommand(argv []string) {
	cmd := commands.Lookup(argv[0])
	if cmd == nil {
		c.addReply(resp.AppendError(nil, commands.UnknownCommandError(argv)))
		return
	}
	if !cmd.CheckArity(len(argv)) {
		cmd.Reject()
		c.addReply(resp.AppendError(nil, commands.ArityError(cmd.Name)))
		return
	}

	if cmd.Has(commands.CmdNoJob) {
		req := c.newRequest(argv, nil)
		cmd.Call(req)
		c.finishCommand(req)
		return
	}

	job := newCommandJob(c, cmd, argv)
	if err := c.srv.disp.Submit(job); err != nil {
		cmd.Reject()
		c.logger.Debug("command rejected", zap.String("command", cmd.Name), zap.Error(err))
		if errors.Is(err, dispatcher.ErrQueueFull) {
			c.addReply(commands.SharedBusyErr)
		} else {
			c.addReply(commands.SharedShutdownErr)
		}
		return
	}
	c.inFlight = job
}

func (c *Client) newRequest(argv []string, t commands.Blocker) *commands.Request {
	return &commands.Request{
		Argv:   argv,
		DB:     c.srv.db,
		Server: c.srv,
		Thread: t,
	}
}

func (c *Client) finishCommand(req *commands.Request) {
	c.commandsDone.Add(1)
	c.srv.stats.commands.Add(1)
	c.addReply(req.Reply())
	if req.CloseAfterReply() {
		c.closeAfterReply = true
	}
}

// complete is called by the worker once the job is over.
func (c *Client) complete(job *commandJob) {
	c.mu.Lock()
	c.completed = job
	c.mu.Unlock()
	c.srv.sched.SendAsync(c.asyncTok)
}

func (c *Client) collectReply() {
	c.mu.Lock()
	job := c.completed
	c.completed = nil
	c.mu.Unlock()

	if job == nil || job != c.inFlight {
		return
	}
	c.inFlight = nil
	c.finishCommand(job.req)

	c.processPending()
	c.flush()
}

func (c *Client) addReply(b []byte) {
	c.conn.outBuffer.Write(b)
}

// flush writes pending output and keeps the write interest of the socket
// watcher in line with what is left.
func (c *Client) flush() {
	if err := c.conn.Flush(); err != nil {
		c.logger.Debug("write error", zap.Error(err))
		c.close()
		return
	}

	pending := c.conn.Pending()
	if pending != c.writing {
		events := scheduler.EventSocketRead
		if pending {
			events |= scheduler.EventSocketWrite
		}
		if err := c.srv.sched.SetSocketEvents(c.sockTok, events); err != nil {
			c.logger.Debug("cannot change socket events", zap.Error(err))
			c.close()
			return
		}
		c.writing = pending
	}

	if !pending && c.closeAfterReply && c.inFlight == nil {
		c.close()
	}
}

func (c *Client) touch() {
	c.lastInteraction.Store(time.Now().UnixMilli())
	if c.idleTok != 0 {
		c.srv.sched.RearmTimer(c.idleTok, c.srv.cfg.Server.IdleTimeout())
	}
}

// checkIdle closes the client unless a command is still executing for it.
func (c *Client) checkIdle() {
	if c.inFlight != nil {
		c.srv.sched.RearmTimer(c.idleTok, c.srv.cfg.Server.IdleTimeout())
		return
	}
	c.logger.Debug("closing idle client")
	c.close()
}

// close releases the client. It must run on the client's loop, or after
// the scheduler stopped.
func (c *Client) close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	sched := c.srv.sched
	for _, tok := range []scheduler.EventToken{c.sockTok, c.asyncTok, c.idleTok} {
		if tok != 0 {
			sched.UninstallEvent(tok)
		}
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("close error", zap.Error(err))
	}
	c.srv.removeClient(c)
	c.logger.Debug("client closed")
}

// openClient hands a new connection to loop. Only the async watcher is
// installed here; the first async delivery runs start on the client's loop
// so no other thread ever touches the client's state.
func (s *Server) openClient(fd int, addr string, loop scheduler.EventLoop) (*Client, error) {
	id := s.nextClientID.Add(1)
	c := &Client{
		id:      id,
		srv:     s,
		conn:    newConnection(fd, addr),
		loop:    loop,
		created: time.Now(),
		logger:  s.logger.With(zap.Uint64("client", id), zap.String("addr", addr), zap.Int("loop", int(loop))),
	}
	c.lastInteraction.Store(c.created.UnixMilli())

	var err error
	if c.asyncTok, err = s.sched.InstallAsyncEvent(loop, c); err != nil {
		return nil, err
	}
	s.addClient(c)
	s.stats.connections.Add(1)
	s.sched.SendAsync(c.asyncTok)
	return c, nil
}

func queueFor(cmd *commands.RedisCommand) string {
	if cmd.Has(commands.CmdAdmin) {
		return config.QueueAdmin
	}
	return config.QueueClient
}
