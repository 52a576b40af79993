// Package eventlog appends dispatched client events to a JSON lines file.
package eventlog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

type Entry struct {
	TsMS    int64          `json:"ts_ms"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Logger struct {
	mu   sync.Mutex
	file *os.File
}

func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f}, nil
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}

// Log writes one line. A nil Logger discards entries, so callers can log
// unconditionally.
func (l *Logger) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	if entry.TsMS == 0 {
		entry.TsMS = time.Now().UnixMilli()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	_, err = l.file.Write(append(line, '\n'))
	return err
}
