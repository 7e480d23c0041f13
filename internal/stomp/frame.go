// Package stomp implements the minimal STOMP 1.2 frame codec the room
// broker speaks. Each websocket text message carries exactly one frame, so
// the codec works on whole byte slices rather than a stream.
package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Client and server frame commands used by the room protocol.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

// Well-known header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrDestination   = "destination"
	HdrSubscription  = "subscription"
	HdrID            = "id"
	HdrMessageID     = "message-id"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
	HdrMessage       = "message"
	HdrReceipt       = "receipt"
)

// Frame is a single STOMP frame. Headers preserve insertion order because
// repeated headers keep only the first occurrence on read.
type Frame struct {
	Command string
	headers []string // flattened key,value pairs
	Body    []byte
}

// NewFrame builds a frame from alternating key/value header arguments.
func NewFrame(command string, headers ...string) *Frame {
	f := &Frame{Command: command}
	for i := 0; i+1 < len(headers); i += 2 {
		f.Set(headers[i], headers[i+1])
	}
	return f
}

// Set appends or replaces a header.
func (f *Frame) Set(key, value string) {
	for i := 0; i+1 < len(f.headers); i += 2 {
		if f.headers[i] == key {
			f.headers[i+1] = value
			return
		}
	}
	f.headers = append(f.headers, key, value)
}

// Get returns the first value for key, or "".
func (f *Frame) Get(key string) string {
	for i := 0; i+1 < len(f.headers); i += 2 {
		if f.headers[i] == key {
			return f.headers[i+1]
		}
	}
	return ""
}

// heartBeatFrame is the single-EOL frame either peer sends as a keep-alive.
var heartBeatFrame = []byte("\n")

// IsHeartBeat reports whether raw is a bare keep-alive rather than a frame.
func IsHeartBeat(raw []byte) bool {
	trimmed := bytes.TrimRight(raw, "\r\n")
	return len(trimmed) == 0
}

// HeartBeat returns the raw bytes of a keep-alive signal.
func HeartBeat() []byte {
	return heartBeatFrame
}

// Marshal renders the frame in wire form, NUL-terminated. STOMP 1.2
// exempts CONNECT frames from header escaping; all others escape.
func (f *Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	escape := f.Command != CmdConnect && f.Command != CmdConnected
	for i := 0; i+1 < len(f.headers); i += 2 {
		key, value := f.headers[i], f.headers[i+1]
		if escape {
			key, value = escapeHeader(key), escapeHeader(value)
		}
		buf.WriteString(key)
		buf.WriteByte(':')
		buf.WriteString(value)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		buf.WriteString(HdrContentLength)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Parse decodes a full frame from raw bytes.
func Parse(raw []byte) (*Frame, error) {
	raw = bytes.TrimSuffix(raw, []byte{0})
	head, body, found := bytes.Cut(raw, []byte("\n\n"))
	if !found {
		return nil, fmt.Errorf("stomp: missing header terminator")
	}
	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("stomp: empty command")
	}
	f := &Frame{Command: lines[0], Body: body}
	escaped := f.Command != CmdConnect && f.Command != CmdConnected
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("stomp: malformed header %q", line)
		}
		if escaped {
			var err error
			if key, err = unescapeHeader(key); err != nil {
				return nil, err
			}
			if value, err = unescapeHeader(value); err != nil {
				return nil, err
			}
		}
		// Repeated headers: first one wins.
		if f.Get(key) == "" {
			f.Set(key, value)
		}
	}
	if cl := f.Get(HdrContentLength); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > len(body) {
			return nil, fmt.Errorf("stomp: bad content-length %q", cl)
		}
		f.Body = body[:n]
	}
	return f, nil
}

func escapeHeader(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	return r.Replace(s)
}

func unescapeHeader(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("stomp: dangling escape in %q", s)
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("stomp: invalid escape \\%c", s[i])
		}
	}
	return b.String(), nil
}

// ParseHeartBeat splits a "cx,cy" heart-beat header into its two intervals
// in milliseconds. Zero means the peer cannot honor that direction.
func ParseHeartBeat(value string) (sendMillis, recvMillis int64, err error) {
	sx, sy, ok := strings.Cut(value, ",")
	if !ok {
		return 0, 0, fmt.Errorf("stomp: bad heart-beat %q", value)
	}
	if sendMillis, err = strconv.ParseInt(strings.TrimSpace(sx), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("stomp: bad heart-beat %q", value)
	}
	if recvMillis, err = strconv.ParseInt(strings.TrimSpace(sy), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("stomp: bad heart-beat %q", value)
	}
	return sendMillis, recvMillis, nil
}
