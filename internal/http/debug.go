package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const maxBodyLogSize = 1024

// DebugLogger dumps requests and responses in a human-readable form. A nil
// *DebugLogger is valid and logs nothing.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

func (d *DebugLogger) LogRequest(actorID int, stepName string, req *http.Request, body []byte) {
	if d == nil {
		return
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n[Actor %d] >>> REQUEST: %s\n", actorID, stepName)
	fmt.Fprintf(&buf, "  %s %s\n", req.Method, req.URL.String())
	writeHeaders(&buf, req.Header)
	if len(body) > 0 {
		fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
	}
	d.write(buf.Bytes())
}

func (d *DebugLogger) LogResponse(actorID int, stepName string, resp *Response) {
	if d == nil {
		return
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[Actor %d] <<< RESPONSE: %s (%s)\n", actorID, stepName, resp.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&buf, "  Status: %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	writeHeaders(&buf, resp.Header)
	if len(resp.Body) > 0 {
		fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(resp.Body))
	}
	d.write(buf.Bytes())
}

func (d *DebugLogger) LogError(actorID int, stepName string, err error, duration time.Duration) {
	if d == nil {
		return
	}
	d.write([]byte(fmt.Sprintf("[Actor %d] !!! ERROR: %s (%s)\n  %v\n",
		actorID, stepName, duration.Round(time.Millisecond), err)))
}

func (d *DebugLogger) write(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = d.out.Write(p)
}

func writeHeaders(buf *bytes.Buffer, h http.Header) {
	if len(h) == 0 {
		return
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	buf.WriteString("  Headers:\n")
	for _, name := range names {
		fmt.Fprintf(buf, "    %s: %s\n", name, strings.Join(h[name], ", "))
	}
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
