package minarai

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultLang           = "ja-JP"
	DefaultChannelRootURL = "https://socketio-connector.minarai.ch"
	DefaultAPIVersion     = "v1"
	DefaultEIO            = 3
)

type TransportOptions struct {
	// Path of the Socket.IO endpoint. Defaults to /socket.io/<api version>.
	Path             string        `yaml:"path"`
	EIO              int           `yaml:"eio"`
	Header           http.Header   `yaml:"-"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	Reconnect        bool          `yaml:"reconnect"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"`
	TLSSkipVerify    bool          `yaml:"tls_skip_verify"`
}

type Options struct {
	// Lang is the default outbound language.
	Lang                string           `yaml:"lang"`
	ChannelRootURL      string           `yaml:"channel_root_url"`
	APIVersion          string           `yaml:"api_version"`
	Transport           TransportOptions `yaml:"transport"`
	ImageFetchViaHeader bool             `yaml:"image_fetch_via_header"`
	// Position and Extra are the per-client defaults for SendOptions.
	Position map[string]any `yaml:"position"`
	Extra    map[string]any `yaml:"extra"`

	Logger     *slog.Logger     `yaml:"-"`
	HTTPClient *http.Client     `yaml:"-"`
	Dial       TransportFactory `yaml:"-"`
}

func (o Options) withDefaults() Options {
	if o.Lang == "" {
		o.Lang = DefaultLang
	}
	if o.ChannelRootURL == "" {
		o.ChannelRootURL = DefaultChannelRootURL
	}
	if o.APIVersion == "" {
		o.APIVersion = DefaultAPIVersion
	}
	if o.Transport.Path == "" {
		o.Transport.Path = "/socket.io/" + o.APIVersion
	}
	if o.Transport.EIO == 0 {
		o.Transport.EIO = DefaultEIO
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Dial == nil {
		o.Dial = DialSocketIO
	}
	return o
}

// SendOptions override the client defaults for a single Send. Nil fields fall
// back to the client's Options, then to the built-in defaults.
type SendOptions struct {
	Lang     string
	Position map[string]any
	Extra    map[string]any
}

type GetLogsOptions struct {
	// LtDate asks for logs older than this date.
	LtDate string
	Limit  int
}
