package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nextremer/minarai-client-go/internal/eventlog"
	"github.com/nextremer/minarai-client-go/pkg/minarai"
)

var chatCommand = &cli.Command{
	Name:  "chat",
	Usage: "Join a session and exchange messages over stdin/stdout",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "event-log",
			Usage: "Append every received event to this JSON lines file",
		},
		&cli.BoolFlag{
			Name:  "reconnect",
			Usage: "Reconnect with backoff when the connection drops",
		},
	},
	Action: cmdChat,
}

// chatSession is the part of the client the input loop drives.
type chatSession interface {
	Send(message string, opts *minarai.SendOptions) error
	SendCommand(name string, extra map[string]any) error
	GetLogs(opts *minarai.GetLogsOptions) error
	ForceDisconnect() error
}

var errQuit = errors.New("quit")

func cmdChat(ctx *cli.Context) error {
	cfg := getConfig(ctx)
	if ctx.IsSet("event-log") {
		cfg.EventLog = ctx.String("event-log")
	}
	if ctx.IsSet("reconnect") {
		cfg.Options.Transport.Reconnect = ctx.Bool("reconnect")
	}

	var elog *eventlog.Logger
	if cfg.EventLog != "" {
		var err error
		elog, err = eventlog.Open(cfg.EventLog)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer elog.Close()
	}

	client, err := cfg.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	for _, ev := range minarai.Events() {
		client.On(ev, func(ev minarai.Event, payload map[string]any) {
			if err := elog.Log(eventlog.Entry{Event: ev.String(), Payload: payload}); err != nil {
				slog.Warn("event log write failed", "event", ev, "err", err)
			}
			printEvent(os.Stdout, ev, payload)
		})
	}

	if err := client.Init(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-sig:
			slog.Info("signal received, closing")
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := handleLine(client, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

// handleLine runs one input line: slash commands map to client operations and
// anything else is sent as a chat message.
func handleLine(s chatSession, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return s.Send(line, nil)
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "quit", "exit":
		return errQuit
	case "disconnect":
		return s.ForceDisconnect()
	case "command":
		cmd, raw, _ := strings.Cut(rest, " ")
		if cmd == "" {
			return fmt.Errorf("usage: /command NAME [JSON]")
		}
		var extra map[string]any
		if raw = strings.TrimSpace(raw); raw != "" {
			if err := json.Unmarshal([]byte(raw), &extra); err != nil {
				return fmt.Errorf("command extra must be a JSON object: %w", err)
			}
		}
		return s.SendCommand(cmd, extra)
	case "logs":
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return s.GetLogs(nil)
		}
		opts := &minarai.GetLogsOptions{LtDate: fields[0]}
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return fmt.Errorf("bad limit %q", fields[1])
			}
			opts.Limit = n
		}
		return s.GetLogs(opts)
	default:
		return fmt.Errorf("unknown command /%s", name)
	}
}

func printEvent(w io.Writer, ev minarai.Event, payload map[string]any) {
	switch ev {
	case minarai.EventSync, minarai.EventMessage, minarai.EventSystemMessage:
	default:
		fmt.Fprintf(w, "[%s]\n", ev)
		return
	}
	env, err := minarai.ParseEnvelope(payload)
	if err != nil {
		fmt.Fprintf(w, "[%s] %v\n", ev, err)
		return
	}
	if text, ok := env.Text(); ok {
		fmt.Fprintf(w, "[%s] %s\n", ev, text)
	}
	if msg, ok := env.Body["message"].(map[string]any); ok {
		printMessage(w, ev, msg)
	}
	for _, msg := range env.Messages() {
		printMessage(w, ev, msg)
	}
}

func printMessage(w io.Writer, ev minarai.Event, msg map[string]any) {
	if u, ok := msg["url"].(string); ok {
		if len(u) > 48 {
			u = u[:48] + "..."
		}
		fmt.Fprintf(w, "[%s] image %s\n", ev, u)
		return
	}
	for _, key := range []string{"speech", "text", "message"} {
		if s, ok := msg[key].(string); ok {
			fmt.Fprintf(w, "[%s] %s\n", ev, s)
			return
		}
	}
}
