package socketio

import (
	"net/url"
	"strconv"
	"strings"
)

func NormalizeWSURL(base string) (string, error) {
	if strings.HasPrefix(base, "ws://") || strings.HasPrefix(base, "wss://") {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else if u.Scheme == "https" {
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// BuildURL turns a connector root URL into the Engine.IO websocket endpoint.
// The root URL's path selects the Socket.IO namespace, which is returned separately.
func BuildURL(root, path string, eio int) (string, string, error) {
	base, err := NormalizeWSURL(root)
	if err != nil {
		return "", "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", "", err
	}
	namespace := strings.TrimRight(u.Path, "/")
	if namespace == "" {
		namespace = "/"
	}
	if path == "" {
		path = "/socket.io"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = path
	u.RawPath = ""
	q := u.Query()
	q.Set("EIO", strconv.Itoa(eio))
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), namespace, nil
}
