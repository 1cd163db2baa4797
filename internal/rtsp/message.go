// Package rtsp implements the RTSP-derived control protocol: message
// parsing/encoding, capability negotiation, and the CSeq-correlated
// request/response state machine that drives a cast session's handshake.
package rtsp

import (
	"fmt"
	"strconv"
	"strings"
)

// Method is an RTSP request method, including the cast-specific
// extensions (RENDER_READY) alongside the standard ones.
type Method string

// Methods used by the control protocol.
const (
	MethodAnnounce     Method = "ANNOUNCE"
	MethodDescribe     Method = "DESCRIBE"
	MethodGetParameter Method = "GET_PARAMETER"
	MethodOptions      Method = "OPTIONS"
	MethodPause        Method = "PAUSE"
	MethodPlay         Method = "PLAY"
	MethodRecord       Method = "RECORD"
	MethodSetup        Method = "SETUP"
	MethodSetParameter Method = "SET_PARAMETER"
	MethodTeardown     Method = "TEARDOWN"
	MethodRenderReady  Method = "RENDER_READY"
)

const (
	protocolVersion = "RTSP/1.0"
	statusOKLine    = "200 OK"
	msgSeparator    = "\r\n"
	minSplitLength  = 1
)

// Message is a parsed RTSP request or response. A zero CSeq means none
// was present on the wire (GetSeq returning 0 in the original).
type Message struct {
	FirstLine string
	IsOK      bool
	CSeq      int
	Headers   map[string]string
	// Unmatched carries header-section lines with no "key: value" form,
	// concatenated. A GET_PARAMETER's list of parameter names follows the
	// blank line, so it lands in Body, not here.
	Unmatched string
	Body      string
}

// ParseMessage splits str on CRLF and fills in a Message, mirroring
// RtspParse::ParseMsg: the first line is kept verbatim, header lines are
// split on the first colon with the key lowercased and trimmed, and any
// header-section line without a colon is appended to Unmatched instead
// of being dropped.
func ParseMessage(raw string) (*Message, error) {
	// Tolerate peers that send bare "\n" line endings instead of "\r\n"
	// (and "\n\n" instead of "\r\n\r\n" for the header/body break) by
	// normalizing to CRLF before splitting: collapse any existing CRLF to
	// LF first so a mixed-ending message doesn't end up double-spaced.
	normalized := strings.ReplaceAll(raw, msgSeparator, "\n")
	normalized = strings.ReplaceAll(normalized, "\n", msgSeparator)
	lines := strings.Split(normalized, msgSeparator)
	if len(lines) <= minSplitLength {
		return nil, fmt.Errorf("rtsp: message too short to parse (%d lines)", len(lines))
	}

	msg := &Message{
		FirstLine: lines[0],
		IsOK:      strings.Contains(lines[0], statusOKLine),
		Headers:   make(map[string]string),
	}

	var unmatched strings.Builder
	bodyStart := -1
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			// First blank line ends the header section; everything after
			// it (rejoined) is the body.
			if bodyStart == -1 {
				bodyStart = i + 1
			}
			continue
		}
		if bodyStart != -1 {
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			unmatched.WriteString(strings.TrimSpace(line))
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		if key == "" || val == "" {
			continue
		}
		msg.Headers[key] = val
	}
	msg.Unmatched = unmatched.String()

	if bodyStart >= 0 && bodyStart < len(lines) {
		msg.Body = strings.Join(lines[bodyStart:], msgSeparator)
	}

	if cseq, ok := msg.Headers["cseq"]; ok {
		msg.CSeq = ParseIntSafe(cseq)
	}

	return msg, nil
}

// ParseIntSafe parses str as a base-10 int, returning -1 (INVALID_VALUE
// in the original) on any parse error or trailing garbage, rather than
// the partial value strconv would otherwise stop at.
func ParseIntSafe(str string) int {
	str = strings.TrimSpace(str)
	if str == "" {
		return -1
	}
	v, err := strconv.Atoi(str)
	if err != nil {
		return -1
	}
	return v
}

// requestHeaders returns the common CSeq request-header block.
func requestHeaders(cseq int) string {
	return fmt.Sprintf("CSeq: %d%s", cseq, msgSeparator)
}

// responseHeaders returns the common status/CSeq response-header block.
func responseHeaders(statusLine string, cseq int) string {
	var b strings.Builder
	b.WriteString(protocolVersion)
	b.WriteByte(' ')
	b.WriteString(statusLine)
	b.WriteString(msgSeparator)
	b.WriteString("Server: localhost")
	b.WriteString(msgSeparator)
	if cseq >= 0 {
		fmt.Fprintf(&b, "CSeq: %d%s", cseq, msgSeparator)
	}
	return b.String()
}

func withContentLength(headerBlock, body string) string {
	var b strings.Builder
	b.WriteString(headerBlock)
	b.WriteString("Content-Type: text/parameters")
	b.WriteString(msgSeparator)
	fmt.Fprintf(&b, "Content-Length: %d%s", len(body), msgSeparator)
	b.WriteString(msgSeparator)
	b.WriteString(body)
	return b.String()
}

// EncapRequest builds a bare request line + CSeq header + blank line,
// for methods with no body (PLAY/PAUSE/TEARDOWN/SETUP).
func EncapRequest(method Method, uri string, cseq int, extraHeaders ...string) string {
	if uri == "" {
		uri = "*"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s%s", method, uri, protocolVersion, msgSeparator)
	b.WriteString(requestHeaders(cseq))
	for _, h := range extraHeaders {
		b.WriteString(h)
		b.WriteString(msgSeparator)
	}
	b.WriteString(msgSeparator)
	return b.String()
}

// EncapRequestWithBody builds a request with a text/parameters body and
// matching Content-Length, as used by ANNOUNCE/GET_PARAMETER/SET_PARAMETER.
func EncapRequestWithBody(method Method, uri string, cseq int, body string) string {
	if uri == "" {
		uri = "*"
	}
	var head strings.Builder
	fmt.Fprintf(&head, "%s %s %s%s", method, uri, protocolVersion, msgSeparator)
	head.WriteString(requestHeaders(cseq))
	return withContentLength(head.String(), body)
}

// EncapCommonResponse builds a bodyless "200 OK"-or-other-status response
// that echoes the request's CSeq, mirroring RtspEncap::EncapCommonResponse.
func EncapCommonResponse(req *Message, statusLine string) string {
	cseq := -1
	if c, ok := req.Headers["cseq"]; ok {
		cseq = ParseIntSafe(c)
	}
	return responseHeaders(statusLine, cseq) + msgSeparator
}

// EncapResponseWithBody builds a "200 OK" response carrying body.
func EncapResponseWithBody(cseq int, body string) string {
	return withContentLength(responseHeaders(statusOKLine, cseq), body)
}
