package node

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fzft/go-avocado/commands"
	"github.com/fzft/go-avocado/dispatcher"
)

// commandJob executes one command of a client on a dispatcher worker. Its
// reply travels back to the client's loop through the client's async
// watcher.
type commandJob struct {
	id     string
	client *Client
	cmd    *commands.RedisCommand
	req    *commands.Request
}

func newCommandJob(c *Client, cmd *commands.RedisCommand, argv []string) *commandJob {
	return &commandJob{
		id:     uuid.NewString(),
		client: c,
		cmd:    cmd,
		req:    c.newRequest(argv, nil),
	}
}

func (j *commandJob) Name() string {
	return fmt.Sprintf("%s/%d/%s", j.cmd.Name, j.client.id, j.id)
}

func (j *commandJob) Queue() string { return queueFor(j.cmd) }

func (j *commandJob) Type() dispatcher.JobType {
	switch {
	case j.cmd.Has(commands.CmdBlocking):
		return dispatcher.JobSpecial
	case j.cmd.Has(commands.CmdWrite):
		return dispatcher.JobWrite
	}
	return dispatcher.JobRead
}

func (j *commandJob) Work(t *dispatcher.Thread) dispatcher.Status {
	j.req.Thread = t
	j.cmd.Call(j.req)
	return dispatcher.StatusDone
}

func (j *commandJob) HandleError(err error) {
	switch {
	case errors.Is(err, dispatcher.ErrShuttingDown):
		j.req.AddReply(commands.SharedShutdownErr)
	default:
		j.client.logger.Error("command failed", zap.String("job", j.Name()), zap.Error(err))
		j.req.DiscardReply()
		j.req.AddReplyError("internal error while executing command")
	}
}

func (j *commandJob) Cleanup() {
	j.client.complete(j)
}
