package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fzft/go-avocado/deps/hredis"
	"github.com/fzft/go-avocado/deps/linenoise"
)

var (
	RedisCliHisFileEnv     = "AVOCADOCLI_HISTFILE"
	RedisCliHisFileDefault = ".avocadocli_history"
	RedisCliConnectTimeout = 5 * time.Second
)

type CliConnectFlag int

const (
	CCForce CliConnectFlag = 1 << iota // Re-connect if already connected.
	CCQuiet                            // Don't show non-error messages.
)

type OutputMode uint8

const (
	OutputStandard OutputMode = iota
	OutputRaw
)

type CliConnInfo struct {
	hostIp   string
	hostPort int
}

type RedisCliCfg struct {
	connInfo    CliConnInfo
	hostSocket  string
	repeat      int
	interval    time.Duration
	interactive bool
	prompt      string
	output      OutputMode
	lastReply   *hredis.RedisReply
}

type RedisCli struct {
	config  *RedisCliCfg
	context *hredis.RedisContext
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
}

func NewCliCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := &RedisCliCfg{}
	var raw, noRaw bool

	cmd := &cobra.Command{
		Use:   "cli [command [arg ...]]",
		Short: "Interactive client; runs a single command when one is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") && rootOpts.ConfigPath != "" {
				serverCfg, err := rootOpts.loadConfig()
				if err != nil {
					return err
				}
				cfg.connInfo.hostPort = serverCfg.Server.Port
			}
			cli := &RedisCli{
				config: cfg,
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
			}
			switch {
			case raw:
				cfg.output = OutputRaw
			case noRaw:
				cfg.output = OutputStandard
			case !isTerminal(cli.out):
				cfg.output = OutputRaw
			}
			return cli.Run(args)
		},
	}

	cmd.Flags().StringVarP(&cfg.connInfo.hostIp, "host", "H", "127.0.0.1", "server hostname")
	cmd.Flags().IntVarP(&cfg.connInfo.hostPort, "port", "p", 6380, "server port")
	cmd.Flags().StringVarP(&cfg.hostSocket, "socket", "s", "", "server unix socket (overrides host and port)")
	cmd.Flags().IntVarP(&cfg.repeat, "repeat", "r", 1, "execute the command N times")
	cmd.Flags().DurationVarP(&cfg.interval, "interval", "i", 0, "wait between repeated commands")
	cmd.Flags().BoolVar(&raw, "raw", false, "use raw formatting for replies (default when stdout is not a tty)")
	cmd.Flags().BoolVar(&noRaw, "no-raw", false, "force formatted output even when stdout is not a tty")
	return cmd
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Run executes args, or every line of a non terminal stdin, or starts the
// interactive loop.
func (cli *RedisCli) Run(args []string) error {
	defer func() {
		if cli.context != nil {
			cli.context.Close()
		}
	}()

	if len(args) > 0 {
		if err := cli.connect(0); err != nil {
			return err
		}
		return cli.issueCommandRepeat(args, cli.config.repeat)
	}

	if !isTerminal(cli.in) {
		if err := cli.connect(0); err != nil {
			return err
		}
		return cli.runLines(cli.in)
	}

	// A failed connection is not fatal in interactive mode.
	_ = cli.connect(CCQuiet)
	return cli.repl()
}

// connect to the server
// flag: CCForce: The connection is performed even if there is already
// *                a connected socket.
// *    CCQuiet: Don't print errors if connection fails
func (cli *RedisCli) connect(flag CliConnectFlag) error {
	if cli.context != nil && flag&CCForce == 0 {
		return nil
	}
	if cli.context != nil {
		cli.context.Close()
		cli.context = nil
	}

	var (
		ctx *hredis.RedisContext
		err error
	)
	if cli.config.hostSocket != "" {
		ctx, err = hredis.NewRedisContextWithOpts(hredis.RedisOpts{
			Type:    hredis.RedisConnUnix,
			Path:    cli.config.hostSocket,
			Timeout: RedisCliConnectTimeout,
		})
	} else {
		ctx, err = hredis.RedisConnectWithTimeout(cli.config.connInfo.hostIp, cli.config.connInfo.hostPort, RedisCliConnectTimeout)
	}
	if err != nil {
		if flag&CCQuiet == 0 {
			fmt.Fprintf(cli.errOut, "Could not connect to avocado at %s: %v\n", cli.endpoint(), err)
		}
		return err
	}
	// replies to commands such as DEBUG SLEEP may take long
	ctx.SetTimeout(0)
	cli.context = ctx
	return nil
}

func (cli *RedisCli) endpoint() string {
	if cli.config.hostSocket != "" {
		return cli.config.hostSocket
	}
	return fmt.Sprintf("%s:%d", cli.config.connInfo.hostIp, cli.config.connInfo.hostPort)
}

func (cli *RedisCli) issueCommandRepeat(argv []string, repeat int) error {
	for i := 0; i < repeat; i++ {
		if i > 0 && cli.config.interval > 0 {
			time.Sleep(cli.config.interval)
		}
		if err := cli.issueCommand(argv); err != nil {
			return err
		}
	}
	return nil
}

// issueCommand sends argv, reconnecting once when the connection was lost.
func (cli *RedisCli) issueCommand(argv []string) error {
	if cli.context == nil {
		if err := cli.connect(0); err != nil {
			return err
		}
	}

	reply, err := cli.context.RedisCommandArgv(argv)
	if err != nil && cli.context.Err != hredis.RedisErrProtocol && cli.config.interactive {
		if cerr := cli.connect(CCForce); cerr != nil {
			return err
		}
		reply, err = cli.context.RedisCommandArgv(argv)
	}
	if err != nil {
		cli.context.Close()
		cli.context = nil
		return err
	}

	cli.config.lastReply = reply
	cli.printReply(reply)
	if strings.EqualFold(argv[0], "quit") {
		cli.context.Close()
		cli.context = nil
	}
	return nil
}

func (cli *RedisCli) printReply(reply *hredis.RedisReply) {
	if cli.config.output == OutputRaw {
		fmt.Fprint(cli.out, formatRaw(reply))
		return
	}
	fmt.Fprint(cli.out, reply.Format())
}

// formatRaw prints the values only, one per line.
func formatRaw(r *hredis.RedisReply) string {
	switch r.Tp {
	case hredis.RedisReplyInteger:
		return strconv.FormatInt(r.Integer, 10) + "\n"
	case hredis.RedisReplyNil:
		return "\n"
	case hredis.RedisReplyArray, hredis.RedisReplySet, hredis.RedisReplyPush, hredis.RedisReplyMap:
		var b strings.Builder
		for _, e := range r.Element {
			b.WriteString(formatRaw(e))
		}
		return b.String()
	}
	return r.Str + "\n"
}

func (cli *RedisCli) runLines(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		argv, err := splitArgs(sc.Text())
		if err != nil {
			return err
		}
		if len(argv) == 0 {
			continue
		}
		if err := cli.issueCommandRepeat(argv, cli.config.repeat); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (cli *RedisCli) repl() error {
	cli.config.interactive = true

	line := linenoise.New()
	defer line.Close()
	line.SetWordsCompleter(commandNames())

	historyFile := getDotfilePath(RedisCliHisFileEnv, RedisCliHisFileDefault)
	if historyFile != "" {
		_ = line.HistoryLoad(historyFile)
		defer line.HistorySave(historyFile)
	}

	cli.cliRefreshPrompt()
	for {
		prompt := "not connected> "
		if cli.context != nil {
			prompt = cli.config.prompt
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			// ctrl-c, ctrl-d
			return nil
		}

		argv, err := splitArgs(input)
		if err != nil {
			fmt.Fprintln(cli.out, "Invalid argument(s)")
			continue
		}
		if len(argv) == 0 {
			continue
		}
		line.AppendHistory(input)

		// check if we have a repeat command option and need to skip the first arg
		repeat := 1
		if n, err := strconv.Atoi(argv[0]); err == nil && len(argv) > 1 {
			if n <= 0 {
				fmt.Fprintln(cli.out, "Invalid avocado-cli repeat command option value.")
				continue
			}
			repeat, argv = n, argv[1:]
		}

		switch {
		case strings.EqualFold(argv[0], "quit") || strings.EqualFold(argv[0], "exit"):
			if cli.context != nil {
				_ = cli.issueCommand([]string{"QUIT"})
			}
			return nil
		case strings.EqualFold(argv[0], "help") || argv[0] == "?":
			cli.cliOutputHelp(argv[1:])
		case len(argv) == 3 && strings.EqualFold(argv[0], "connect"):
			port, err := strconv.Atoi(argv[2])
			if err != nil {
				fmt.Fprintln(cli.out, "Invalid port number")
				continue
			}
			cli.config.hostSocket = ""
			cli.config.connInfo = CliConnInfo{hostIp: argv[1], hostPort: port}
			cli.cliRefreshPrompt()
			_ = cli.connect(CCForce)
		case len(argv) == 1 && strings.EqualFold(argv[0], "clear"):
			_ = line.ClearScreen()
		default:
			start := time.Now()
			if err := cli.issueCommandRepeat(argv, repeat); err != nil {
				fmt.Fprintf(cli.errOut, "Error: %v\n", err)
				continue
			}
			if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
				fmt.Fprintf(cli.out, "(%.2fs)\n", elapsed.Seconds())
			}
		}
	}
}

func (cli *RedisCli) cliRefreshPrompt() {
	cli.config.prompt = cli.endpoint() + "> "
}

var errUnbalancedQuotes = errors.New("unbalanced quotes in request")

// splitArgs splits a line into arguments. Double quoted arguments accept
// \n \r \t \" \\ and \xHH escapes, single quoted ones only \'.
func splitArgs(line string) ([]string, error) {
	var (
		argv []string
		cur  strings.Builder
		i    int
	)
	for {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i == len(line) {
			return argv, nil
		}

		cur.Reset()
		inq, insq := false, false
	arg:
		for ; ; i++ {
			if i == len(line) {
				if inq || insq {
					return nil, errUnbalancedQuotes
				}
				break
			}
			c := line[i]
			switch {
			case inq:
				switch {
				case c == '\\' && i+3 < len(line) && line[i+1] == 'x' && isHex(line[i+2]) && isHex(line[i+3]):
					b, _ := strconv.ParseUint(line[i+2:i+4], 16, 8)
					cur.WriteByte(byte(b))
					i += 3
				case c == '\\' && i+1 < len(line):
					i++
					switch line[i] {
					case 'n':
						cur.WriteByte('\n')
					case 'r':
						cur.WriteByte('\r')
					case 't':
						cur.WriteByte('\t')
					case 'b':
						cur.WriteByte('\b')
					case 'a':
						cur.WriteByte('\a')
					default:
						cur.WriteByte(line[i])
					}
				case c == '"':
					// closing quote must be followed by a space or nothing
					if i+1 < len(line) && !isSpace(line[i+1]) {
						return nil, errUnbalancedQuotes
					}
					i++
					break arg
				default:
					cur.WriteByte(c)
				}
			case insq:
				switch {
				case c == '\\' && i+1 < len(line) && line[i+1] == '\'':
					i++
					cur.WriteByte('\'')
				case c == '\'':
					if i+1 < len(line) && !isSpace(line[i+1]) {
						return nil, errUnbalancedQuotes
					}
					i++
					break arg
				default:
					cur.WriteByte(c)
				}
			default:
				switch c {
				case ' ', '\n', '\r', '\t', 0:
					break arg
				case '"':
					inq = true
				case '\'':
					insq = true
				default:
					cur.WriteByte(c)
				}
			}
		}
		argv = append(argv, cur.String())
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\v' || c == '\f'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func getDotfilePath(envOverride, dotFilename string) string {
	if path := os.Getenv(envOverride); path != "" {
		if path == "/dev/null" {
			return ""
		}
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, dotFilename)
}
