package managesieve

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/migadu/sieveconn/logger"
	"github.com/migadu/sieveconn/pkg/metrics"
)

// Status words that terminate a ManageSieve reply.
const (
	StatusOK  = "OK"
	StatusNO  = "NO"
	StatusBYE = "BYE"
)

// GetResponse returns the lines the server has sent since the previous call,
// in order and without line terminators.
//
// It waits up to the wait budget for the first byte. If nothing arrives it
// returns a *TimeoutError. Otherwise it reads every line that can be completed
// from data already received and stops at the first line that cannot; it does
// not wait for the rest of a reply that is still in transit.
func (c *Conn) GetResponse() ([]string, error) {
	if c.closed.Load() {
		return nil, &ConnectionError{Op: "read", Addr: c.addr, Err: ErrClosed}
	}

	start := time.Now()
	if err := c.awaitInput(); err != nil {
		// The server closed the stream after an unterminated last line.
		if c.eof.Load() && len(c.partial) > 0 {
			lines := []string{trimEOL(string(c.partial))}
			c.partial = nil
			metrics.ResponsesTotal.WithLabelValues("ok").Inc()
			return lines, nil
		}
		if errors.Is(err, ErrTimeout) {
			metrics.ResponsesTotal.WithLabelValues("timeout").Inc()
			if c.opts.Debug {
				logger.Debug("ManageSieve Client: no response from server", "name", c.opts.Name, "addr", c.addr, "waited", time.Since(start))
			}
		} else {
			metrics.ResponsesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.ResponseWaitDuration.Observe(time.Since(start).Seconds())

	lines, err := c.drain()
	if err != nil {
		metrics.ResponsesTotal.WithLabelValues("error").Inc()
		return lines, err
	}

	metrics.ResponsesTotal.WithLabelValues("ok").Inc()
	metrics.ResponseLines.Observe(float64(len(lines)))
	if c.opts.Debug {
		for _, line := range lines {
			logger.Debug("ManageSieve Client: received line", "name", c.opts.Name, "line", line)
		}
	}
	return lines, nil
}

// awaitInput blocks until at least one unread byte is available or the wait
// budget runs out. A fragment carried over from the previous call does not
// count as new input.
func (c *Conn) awaitInput() error {
	if c.reader.Buffered() > 0 {
		return nil
	}

	budget := c.opts.WaitBudget()
	if err := c.conn.SetReadDeadline(time.Now().Add(budget)); err != nil {
		return &ConnectionError{Op: "read", Addr: c.addr, Err: err}
	}

	_, err := c.reader.Peek(1)
	switch {
	case err == nil:
		return nil
	case isTimeout(err):
		return &TimeoutError{Budget: budget}
	case errors.Is(err, io.EOF):
		c.eof.Store(true)
	}
	return &ConnectionError{Op: "read", Addr: c.addr, Err: err}
}

// drain reads complete lines until one cannot be finished from data that has
// already arrived.
func (c *Conn) drain() ([]string, error) {
	var lines []string
	for {
		line, err := c.readAvailableLine()
		if err == nil {
			lines = append(lines, line)
			continue
		}

		switch {
		case isTimeout(err):
			return lines, nil
		case errors.Is(err, io.EOF):
			c.eof.Store(true)
			if len(c.partial) > 0 {
				lines = append(lines, trimEOL(string(c.partial)))
				c.partial = nil
			}
			if c.opts.Debug {
				logger.Debug("ManageSieve Client: server closed the connection", "name", c.opts.Name, "addr", c.addr)
			}
			return lines, nil
		default:
			return lines, &ConnectionError{Op: "read", Addr: c.addr, Err: err}
		}
	}
}

// readAvailableLine reads one line, allowing the socket only DrainGrace to
// deliver bytes the buffer does not hold yet. An incomplete line is kept in
// c.partial and finished by a later call.
func (c *Conn) readAvailableLine() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.DrainGrace)); err != nil {
		return "", err
	}

	chunk, err := c.reader.ReadString('\n')
	metrics.BytesTotal.WithLabelValues("in").Add(float64(len(chunk)))
	if err != nil {
		c.partial = append(c.partial, chunk...)
		return "", err
	}

	var line string
	if len(c.partial) > 0 {
		line = string(c.partial) + chunk
		c.partial = nil
	} else {
		line = chunk
	}
	return trimEOL(line), nil
}

// ResponseStatus returns the status word of the last line of a reply:
// StatusOK, StatusNO, StatusBYE, or "" when the reply is empty or
// does not end with a status line.
func ResponseStatus(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) == 0 {
		return ""
	}
	switch word := strings.ToUpper(fields[0]); word {
	case StatusOK, StatusNO, StatusBYE:
		return word
	}
	return ""
}

func trimEOL(line string) string {
	return strings.TrimRight(line, "\r\n")
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
