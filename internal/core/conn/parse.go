package conn

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/volscan/volscan/internal/core"
)

// State is the response parser state.
type State int

const (
	StateHeaders State = iota
	StateContent
	StateChunked
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateHeaders:
		return "collecting_headers"
	case StateContent:
		return "collecting_content"
	case StateChunked:
		return "collecting_chunked"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Outcome is the result of feeding bytes to the parser.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeComplete
	// OutcomeRedirect means a 302 rebound the base URL and dropped the stream;
	// the request must be reissued.
	OutcomeRedirect
)

var (
	crlf       = []byte("\r\n")
	headersEnd = []byte("\r\n\r\n")
)

// State returns the current parser state.
func (c *Connection) State() State { return c.state }

// Feed appends newly arrived bytes and advances the parser as far as they
// allow. Parsing resumes on the next call.
func (c *Connection) Feed(p []byte) (Outcome, error) {
	c.inbound = append(c.inbound, p...)
	for {
		switch c.state {
		case StateHeaders:
			done, outcome, err := c.parseHeaders()
			if err != nil {
				return OutcomePending, err
			}
			if outcome == OutcomeRedirect {
				return OutcomeRedirect, nil
			}
			if !done {
				return OutcomePending, nil
			}
		case StateContent:
			if !c.parseContent() {
				return OutcomePending, nil
			}
		case StateChunked:
			done, err := c.parseChunks()
			if err != nil {
				return OutcomePending, err
			}
			if !done {
				return OutcomePending, nil
			}
		case StateComplete:
			return OutcomeComplete, nil
		}
	}
}

func (c *Connection) resetParse() {
	c.inbound = nil
	c.state = StateHeaders
	c.resp = core.Response{}
	c.contentLength = 0
	c.chunked = false
}

func (c *Connection) parseHeaders() (bool, Outcome, error) {
	end := bytes.Index(c.inbound, headersEnd)
	if end < 0 {
		return false, OutcomePending, nil
	}

	lines := splitLines(string(c.inbound[:end]))
	if len(lines) == 0 || !strings.Contains(lines[0], "HTTP/1") {
		first := ""
		if len(lines) > 0 {
			first = lines[0]
		}
		return false, OutcomePending, &core.ProtocolError{Reason: "missing status line", Line: first}
	}
	status, err := parseStatus(lines[0])
	if err != nil {
		return false, OutcomePending, err
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := headers[key]; seen {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}

	c.resp.Status = status
	c.resp.Headers = headers
	c.inbound = c.inbound[end+len(headersEnd):]

	if status == 302 {
		location := headers["location"]
		if location == "" {
			return false, OutcomePending, &core.ProtocolError{Reason: "redirect without location", Line: lines[0]}
		}
		c.Disconnect()
		c.workload.BaseURL = location
		c.baseURL = location
		return true, OutcomeRedirect, nil
	}

	switch {
	case status == 204:
		c.state = StateComplete
	case headers["content-length"] != "":
		length, err := strconv.ParseInt(headers["content-length"], 10, 64)
		if err != nil || length < 0 {
			return false, OutcomePending, &core.ProtocolError{Reason: "invalid content-length", Line: headers["content-length"]}
		}
		c.contentLength = length
		c.state = StateContent
	default:
		c.chunked = true
		c.contentLength = -1
		c.state = StateChunked
	}
	return true, OutcomePending, nil
}

func (c *Connection) parseContent() bool {
	if c.contentLength == 0 {
		c.resp.Body = append(c.resp.Body, c.inbound...)
		c.inbound = c.inbound[:0]
		c.state = StateComplete
		return true
	}
	if int64(len(c.inbound)) < c.contentLength {
		return false
	}
	c.resp.Body = append(c.resp.Body, c.inbound[:c.contentLength]...)
	c.inbound = c.inbound[c.contentLength:]
	c.state = StateComplete
	return true
}

func (c *Connection) parseChunks() (bool, error) {
	for {
		lineEnd := bytes.Index(c.inbound, crlf)
		if lineEnd < 0 {
			return false, nil
		}
		sizeLine := string(c.inbound[:lineEnd])
		if ext := strings.IndexByte(sizeLine, ';'); ext >= 0 {
			sizeLine = sizeLine[:ext]
		}
		sizeLine = strings.TrimSpace(sizeLine)
		if sizeLine == "" {
			// stray CRLF between chunks
			c.inbound = c.inbound[lineEnd+len(crlf):]
			continue
		}
		size, err := strconv.ParseUint(sizeLine, 16, 31)
		if err != nil {
			return false, &core.ProtocolError{Reason: "invalid chunk size", Line: sizeLine}
		}
		if size == 0 {
			c.inbound = c.inbound[lineEnd+len(crlf):]
			c.inbound = bytes.TrimPrefix(c.inbound, crlf)
			c.state = StateComplete
			return true, nil
		}

		start := lineEnd + len(crlf)
		need := start + int(size) + len(crlf)
		if len(c.inbound) < need {
			return false, nil
		}
		c.resp.Body = append(c.resp.Body, c.inbound[start:start+int(size)]...)
		c.inbound = c.inbound[need:]
	}
}

// parseStatus reads the status code as the token after the protocol version.
func parseStatus(line string) (int, error) {
	_, rest, ok := strings.Cut(line, " ")
	if !ok {
		return 0, &core.ProtocolError{Reason: "status line has no code", Line: line}
	}
	code, _, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 || status > 999 {
		return 0, &core.ProtocolError{Reason: "invalid status code", Line: line}
	}
	return status, nil
}

// splitLines splits on CRLF and drops empty lines.
func splitLines(block string) []string {
	raw := strings.Split(block, "\r\n")
	lines := raw[:0]
	for _, line := range raw {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// extractDocument trims a body to its outermost JSON object or array when the
// framing could not be trusted.
func extractDocument(body []byte) []byte {
	objStart := bytes.IndexByte(body, '{')
	objEnd := bytes.LastIndexByte(body, '}')
	arrStart := bytes.IndexByte(body, '[')
	arrEnd := bytes.LastIndexByte(body, ']')

	if objStart >= 0 && objEnd > objStart && (arrStart < 0 || objStart < arrStart) {
		return body[objStart : objEnd+1]
	}
	if arrStart >= 0 && arrEnd > arrStart {
		return body[arrStart : arrEnd+1]
	}
	return body
}
