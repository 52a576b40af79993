package minarai

import "fmt"

// Send emits a chat message. Each SendOptions field falls back to the client
// default and then to the built-in default.
func (c *Client) Send(message string, opts *SendOptions) error {
	t, id, err := c.session("send", true)
	if err != nil {
		return err
	}
	lang, position, extra := c.resolveSendOptions(opts)
	env := MessageEnvelope(id, c.now(), message, lang, position, extra)
	return c.emit(t, emitMessage, env)
}

// SendCommand emits a named command. A nil extra is sent as an empty object.
func (c *Client) SendCommand(name string, extra map[string]any) error {
	if name == "" {
		return fmt.Errorf("%w: command name must not be empty", ErrMissingArgument)
	}
	return c.sendCommand("send command", emitCommand, func(id Identity) Envelope {
		return CommandEnvelope(id, c.now(), name, extra)
	})
}

// SendSystemCommand emits a system command.
//
// Deprecated: use SendCommand.
func (c *Client) SendSystemCommand(command string, payload map[string]any) error {
	if command == "" {
		return fmt.Errorf("%w: system command must not be empty", ErrMissingArgument)
	}
	c.log.Warn("SendSystemCommand is deprecated, use SendCommand", "command", command)
	return c.sendCommand("send system command", emitSystemCommand, func(id Identity) Envelope {
		return SystemCommandEnvelope(id, c.now(), command, payload)
	})
}

func (c *Client) sendCommand(op, event string, build func(Identity) Envelope) error {
	t, id, err := c.session(op, true)
	if err != nil {
		return err
	}
	return c.emit(t, event, build(id))
}

// GetLogs asks the backend to replay the conversation log. With nil opts the
// request body is empty; otherwise ltDate and limit are sent as given.
func (c *Client) GetLogs(opts *GetLogsOptions) error {
	t, id, err := c.session("get logs", true)
	if err != nil {
		return err
	}
	return c.emit(t, emitLogs, LogsEnvelope(id, c.now(), opts))
}

// ForceDisconnect asks the backend to end the session from its side. It does
// not require the join to have completed.
func (c *Client) ForceDisconnect() error {
	t, _, err := c.session("force disconnect", false)
	if err != nil {
		return err
	}
	c.log.Info("requesting force disconnect")
	if err := t.Emit(emitForceDisconnect); err != nil {
		c.log.Error("emit failed", "event", emitForceDisconnect, "err", err)
		return fmt.Errorf("emit %s: %w", emitForceDisconnect, err)
	}
	return nil
}

func (c *Client) resolveSendOptions(opts *SendOptions) (string, map[string]any, map[string]any) {
	lang, position, extra := c.opts.Lang, c.opts.Position, c.opts.Extra
	if opts != nil {
		if opts.Lang != "" {
			lang = opts.Lang
		}
		if opts.Position != nil {
			position = opts.Position
		}
		if opts.Extra != nil {
			extra = opts.Extra
		}
	}
	if lang == "" {
		lang = DefaultLang
	}
	return lang, orEmpty(position), orEmpty(extra)
}

func (c *Client) emit(t Transport, event string, env Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		c.log.Warn("envelope not sent", "event", event, "err", err)
		return err
	}
	c.log.Debug("emit", "event", event, "id", env.ID)
	if err := t.Emit(event, raw); err != nil {
		c.log.Error("emit failed", "event", event, "id", env.ID, "err", err)
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}
