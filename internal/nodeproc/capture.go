package nodeproc

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"ros-node-supervisor/internal/common/logger"
)

const captureReadChunk = 4096

// OutputCapture reads a node's stdout and stderr concurrently, frames the
// bytes into lines, and publishes one log event per line. Go has no portable
// select(2)-over-arbitrary-fds primitive; one goroutine per stream doing
// ordinary blocking reads gives the same guarantee the spec asks for — no
// stream's read can block the other, and ordering within a single stream is
// preserved.
type OutputCapture struct {
	record *NodeRecord
	logger *logger.Logger
}

// NewOutputCapture creates a capture task for record.
func NewOutputCapture(record *NodeRecord, log *logger.Logger) *OutputCapture {
	return &OutputCapture{record: record, logger: log.WithNode(record.Name)}
}

// Start launches the two stream-reading goroutines and a coordinator that
// closes record.captureDone once both have finished and the process has
// exited. It closes the captureDone channel installed at launch time.
func (c *OutputCapture) Start() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.pump(c.record.stdout, "stdout")
	}()
	go func() {
		defer wg.Done()
		c.pump(c.record.stderr, "stderr")
	}()

	go func() {
		wg.Wait()
		if c.record.exited != nil {
			<-c.record.exited
		}
		c.record.Events.Push(EventStatus, "Output capture finished.", "")
		close(c.record.captureDone)
	}()
}

// pump reads one stream to EOF, framing complete lines and publishing them.
func (c *OutputCapture) pump(r io.ReadCloser, stream string) {
	defer r.Close()

	reader := bufio.NewReaderSize(r, captureReadChunk)
	var buf strings.Builder
	warnedReplace := false

	buffer := make([]byte, captureReadChunk)
	for {
		n, err := reader.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			if !utf8.Valid(chunk) {
				chunk = []byte(strings.ToValidUTF8(string(chunk), "�"))
				if !warnedReplace {
					c.record.Events.Push(EventWarning, "invalid UTF-8 on "+stream+", replacing undecodable bytes", stream)
					warnedReplace = true
				}
			}
			buf.Write(chunk)
			c.flushLines(&buf, stream)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.finalDrain(&buf, stream)
				return
			}
			c.record.Events.Push(EventError, "read error on "+stream+": "+err.Error(), stream)
			return
		}
	}
}

// finalDrain flushes any residual bytes left in buf with no trailing
// newline, emitted exactly once as the stream's last log event.
func (c *OutputCapture) finalDrain(buf *strings.Builder, stream string) {
	trimmed := strings.TrimRight(buf.String(), " \t\r")
	if trimmed == "" {
		return
	}
	c.record.Events.Push(EventLog, trimmed, stream)
	buf.Reset()
}

// flushLines splits buf on '\n', publishing every complete line and
// retaining the trailing partial line for the next read.
func (c *OutputCapture) flushLines(buf *strings.Builder, stream string) {
	content := buf.String()
	idx := strings.LastIndexByte(content, '\n')
	if idx < 0 {
		return
	}

	complete, rest := content[:idx], content[idx+1:]
	for _, line := range strings.Split(complete, "\n") {
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "" {
			continue
		}
		c.record.Events.Push(EventLog, trimmed, stream)
	}

	buf.Reset()
	buf.WriteString(rest)
}
