package feed

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Engine.IO v4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO v5 packet types, carried inside Engine.IO message packets.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// socketPacket is a decoded Socket.IO packet.
type socketPacket struct {
	Type      byte
	Namespace string
	Data      json.RawMessage
}

// Event is a named feed event with its first argument as payload.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// endpointURL maps the configured feed URL onto the Engine.IO websocket endpoint.
// A path on the configured URL names the Socket.IO namespace, as socket.io clients do.
func endpointURL(raw string) (endpoint string, namespace string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.Wrap(err, "parse socket url")
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", "", errors.Errorf("unsupported socket url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", errors.Errorf("socket url %q has no host", raw)
	}

	namespace = "/"
	if p := strings.TrimRight(u.Path, "/"); p != "" {
		namespace = p
	}
	u.Path = "/socket.io/"

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), namespace, nil
}

// encodeConnect builds the namespace CONNECT packet, with auth when given.
func encodeConnect(namespace string, auth map[string]string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte(eioMessage)
	b.WriteByte(sioConnect)
	if namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	if len(auth) > 0 {
		data, err := json.Marshal(auth)
		if err != nil {
			return nil, errors.Wrap(err, "encode auth")
		}
		b.Write(data)
	}
	return b.Bytes(), nil
}

func encodeDisconnect(namespace string) []byte {
	if namespace == "/" {
		return []byte{eioMessage, sioDisconnect}
	}
	return []byte(string([]byte{eioMessage, sioDisconnect}) + namespace + ",")
}

// decodeSocketPacket parses the Socket.IO part of an Engine.IO message packet:
// <type>[/<namespace>,][<ack id>][<json data>]
func decodeSocketPacket(raw []byte) (socketPacket, error) {
	if len(raw) == 0 {
		return socketPacket{}, errors.New("empty socket.io packet")
	}

	p := socketPacket{Type: raw[0], Namespace: "/"}
	rest := raw[1:]

	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			return p, nil
		}
		p.Namespace = string(rest[:end])
		rest = rest[end+1:]
	}

	for len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
		rest = rest[1:]
	}

	if len(rest) > 0 {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// decodeEvent splits an EVENT packet's data array into its name and first argument.
func decodeEvent(data json.RawMessage) (Event, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return Event{}, errors.Wrap(err, "decode event arguments")
	}
	if len(args) == 0 {
		return Event{}, errors.New("event without name")
	}

	var ev Event
	if err := json.Unmarshal(args[0], &ev.Name); err != nil {
		return Event{}, errors.Wrap(err, "decode event name")
	}
	if len(args) > 1 {
		ev.Payload = args[1]
	}
	return ev, nil
}

// connectErrorMessage extracts the reason of a CONNECT_ERROR packet.
func connectErrorMessage(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return string(data)
}
