package conn

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/volscan/volscan/internal/core"
)

// BuildRequest serializes a workload as HTTP/1.1 request text.
func BuildRequest(w core.Workload) ([]byte, error) {
	host, err := hostHeader(w.BaseURL)
	if err != nil {
		return nil, err
	}
	method, err := core.ParseMethod(string(w.Method))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(w.Body))

	buf.WriteString(string(method))
	buf.WriteByte(' ')
	buf.WriteString(w.BaseURL)
	buf.WriteString(w.Path)
	buf.WriteString(" HTTP/1.1\r\n")

	for _, h := range w.Headers {
		if err := validHeader(h); err != nil {
			return nil, err
		}
		buf.WriteString(h.Key)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}

	buf.WriteString("Pragma: no-cache\r\n")
	buf.WriteString("Connection: keep-alive\r\n")
	buf.WriteString("Host: " + host + "\r\n")

	if method.Mutating() {
		buf.WriteString("Content-Length: " + strconv.Itoa(len(w.Body)) + "\r\n\r\n")
		buf.Write(w.Body)
		return buf.Bytes(), nil
	}

	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

func validHeader(h core.Header) error {
	if strings.TrimSpace(h.Key) == "" {
		return fmt.Errorf("empty header name")
	}
	if strings.ContainsAny(h.Key, "\r\n:") || strings.ContainsAny(h.Value, "\r\n") {
		return fmt.Errorf("invalid header %q", h.Key)
	}
	return nil
}
