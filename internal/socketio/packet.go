package socketio

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Engine.IO packet types.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message.
const (
	PacketConnect     = '0'
	PacketDisconnect  = '1'
	PacketEvent       = '2'
	PacketAck         = '3'
	PacketError       = '4'
	PacketBinaryEvent = '5'
	PacketBinaryAck   = '6'
)

var (
	errEmptyPacket  = errors.New("empty packet")
	errNotMessage   = errors.New("not an engine.io message")
	errBadEventData = errors.New("event data is not an array starting with a name")
)

// Handshake is the payload of the Engine.IO open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      byte
	Namespace string
	AckID     int
	Data      json.RawMessage
}

func parseOpen(frame string) (Handshake, error) {
	var hs Handshake
	if frame == "" || frame[0] != engineOpen {
		return hs, errors.New("expected engine.io open packet")
	}
	if err := json.Unmarshal([]byte(frame[1:]), &hs); err != nil {
		return hs, err
	}
	return hs, nil
}

// ParsePacket decodes an Engine.IO message frame ("4...") into a Socket.IO packet.
func ParsePacket(frame string) (Packet, error) {
	p := Packet{AckID: -1, Namespace: "/"}
	if frame == "" {
		return p, errEmptyPacket
	}
	if frame[0] != engineMessage {
		return p, errNotMessage
	}
	rest := frame[1:]
	if rest == "" {
		return p, errEmptyPacket
	}
	p.Type = rest[0]
	rest = rest[1:]

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		if i := strings.IndexByte(rest, '-'); i >= 0 {
			rest = rest[i+1:]
		}
	}
	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:end]
			rest = rest[end+1:]
		}
	}
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return p, err
		}
		p.AckID = id
		rest = rest[digits:]
	}
	if rest != "" {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// Event splits an event packet's data into its name and arguments.
func (p Packet) Event() (string, []json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(p.Data, &items); err != nil || len(items) == 0 {
		return "", nil, errBadEventData
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, errBadEventData
	}
	return name, items[1:], nil
}

// EncodeEvent frames an event for the given namespace.
func EncodeEvent(namespace, event string, args ...any) (string, error) {
	items := make([]any, 0, len(args)+1)
	items = append(items, event)
	items = append(items, args...)
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(engineMessage) + string(PacketEvent) + namespacePrefix(namespace) + string(data), nil
}

// EncodeConnect frames a namespace connect request.
func EncodeConnect(namespace string) string {
	prefix := namespacePrefix(namespace)
	if prefix == "" {
		return string(engineMessage) + string(PacketConnect)
	}
	return string(engineMessage) + string(PacketConnect) + prefix
}

func namespacePrefix(namespace string) string {
	if namespace == "" || namespace == "/" {
		return ""
	}
	return namespace + ","
}
