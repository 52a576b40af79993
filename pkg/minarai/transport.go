package minarai

import (
	"encoding/json"
	"log/slog"

	"github.com/nextremer/minarai-client-go/internal/socketio"
)

// Transport is a persistent bidirectional event channel.
type Transport interface {
	On(event string, handler func(args []json.RawMessage))
	Connect() error
	Emit(event string, args ...any) error
	Close() error
}

type TransportFactory func(rootURL string, opts TransportOptions, logger *slog.Logger) (Transport, error)

// DialSocketIO builds the default websocket-only Socket.IO transport.
func DialSocketIO(rootURL string, opts TransportOptions, logger *slog.Logger) (Transport, error) {
	sock, err := socketio.New(rootURL, socketio.Options{
		Path:             opts.Path,
		EIO:              opts.EIO,
		Header:           opts.Header,
		HandshakeTimeout: opts.HandshakeTimeout,
		Reconnect:        opts.Reconnect,
		ReconnectMax:     opts.ReconnectMax,
		TLSSkipVerify:    opts.TLSSkipVerify,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return sock, nil
}
