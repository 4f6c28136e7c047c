package rtsp

import (
	"errors"
	"fmt"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/actionrelay/actionrelay/pkg/tcp"
)

const (
	ProtoRTSP      = "RTSP/1.0"
	MethodOptions  = "OPTIONS"
	MethodDescribe = "DESCRIBE"
	MethodSetup    = "SETUP"
	MethodPlay     = "PLAY"
	MethodPause    = "PAUSE"
	MethodRecord   = "RECORD"
)

var Public = strings.Join([]string{MethodDescribe, MethodSetup, MethodPlay, MethodPause, MethodRecord}, ", ")

var ErrProtocolMismatch = errors.New("rtsp: protocol mismatch")

func BuildStatusLine(code int, reason string) string {
	return fmt.Sprintf("%s %d %s%s", ProtoRTSP, code, reason, tcp.EndLine)
}

// ParseRequest - exactly three lines: request line, CSeq and User-Agent
func ParseRequest(text string) (*tcp.Request, error) {
	lines := splitLines(text)
	if len(lines) != 3 {
		return nil, fmt.Errorf("%w: %d lines", ErrProtocolMismatch, len(lines))
	}

	fields := strings.Fields(lines[0])
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: request line %q", ErrProtocolMismatch, lines[0])
	}

	uri, err := url.Parse(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProtocolMismatch, err)
	}

	req := &tcp.Request{
		Method: fields[0],
		URL:    uri,
		Proto:  fields[2],
		Header: textproto.MIMEHeader{},
	}

	for i, name := range []string{"CSeq", "User-Agent"} {
		key, value, ok := strings.Cut(lines[i+1], ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), name) {
			return nil, fmt.Errorf("%w: want %s, got %q", ErrProtocolMismatch, name, lines[i+1])
		}
		req.Header.Set(name, strings.TrimSpace(value))
	}

	return req, nil
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '\r' || r == '\n'
	}) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Respond - response for one request block, never empty
func Respond(req *tcp.Request, err error) []byte {
	if err != nil {
		return buildResponse(400, "Bad Request", nil)
	}

	header := textproto.MIMEHeader{"CSeq": {req.Header.Get("CSeq")}}

	switch req.Method {
	case MethodOptions:
		header["Public"] = []string{Public}
		return buildResponse(200, "OK", header)
	}

	return buildResponse(501, "Not Implemented", header)
}

func buildResponse(code int, reason string, header textproto.MIMEHeader) []byte {
	s := BuildStatusLine(code, reason) + tcp.HeaderString(header) + tcp.EndLine
	return []byte(s)
}
