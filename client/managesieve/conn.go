package managesieve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/migadu/sieveconn/helpers"
	"github.com/migadu/sieveconn/logger"
	"github.com/migadu/sieveconn/pkg/metrics"
)

// DefaultPort is used when Dial is given a port of zero or less.
const DefaultPort = 2000

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPollInterval   = 30 * time.Millisecond
	defaultPollAttempts   = 10
	defaultDrainGrace     = 2 * time.Millisecond
)

// Options tunes connection establishment and response framing.
// Zero values select the defaults.
type Options struct {
	Name           string        // Label used in log lines
	ConnectTimeout time.Duration // Per-address dial timeout (default: 10s)
	PollInterval   time.Duration // Wait-phase interval (default: 30ms)
	PollAttempts   int           // Wait-phase attempts (default: 10)
	DrainGrace     time.Duration // How long a drain read may wait for bytes already in flight (default: 2ms)
	Debug          bool          // Log every command and response line
	Resolver       *net.Resolver // Defaults to net.DefaultResolver
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "default"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = defaultPollAttempts
	}
	if o.DrainGrace <= 0 {
		o.DrainGrace = defaultDrainGrace
	}
	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver
	}
	return o
}

// WaitBudget is the longest GetResponse waits for the first byte of a reply.
func (o Options) WaitBudget() time.Duration {
	o = o.withDefaults()
	return o.PollInterval * time.Duration(o.PollAttempts)
}

// Conn is a single ManageSieve client connection.
type Conn struct {
	host        string
	port        int
	addr        string
	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	partial     []byte // bytes of a line whose terminator has not arrived yet
	opts        Options
	connectedAt time.Time

	closed atomic.Bool
	eof    atomic.Bool
}

// Dial resolves host and opens a TCP connection to it. A port of zero or less
// selects DefaultPort. Resolution failures return *HostResolutionError; every
// other failure returns *ConnectionError and no Conn.
func Dial(ctx context.Context, host string, port int, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	if port <= 0 {
		port = DefaultPort
	}

	addrs, err := opts.Resolver.LookupIPAddr(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			metrics.DialsTotal.WithLabelValues("failure").Inc()
			return nil, &ConnectionError{Op: "dial", Addr: host, Err: ctx.Err()}
		}
		metrics.DialsTotal.WithLabelValues("unresolved").Inc()
		return nil, &HostResolutionError{Host: host, Err: err}
	}
	if len(addrs) == 0 {
		metrics.DialsTotal.WithLabelValues("unresolved").Inc()
		return nil, &HostResolutionError{Host: host}
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	var lastErr error
	var lastAddr string
	for _, ip := range addrs {
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))
		nc, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if opts.Debug {
				logger.Debug("ManageSieve Client: dial attempt failed", "name", opts.Name, "addr", addr, "error", err)
			}
			lastErr, lastAddr = err, addr
			if ctx.Err() != nil {
				break
			}
			continue
		}

		metrics.DialsTotal.WithLabelValues("success").Inc()
		metrics.ConnectionsCurrent.Inc()
		if opts.Debug {
			logger.Debug("ManageSieve Client: connected", "name", opts.Name, "host", host, "addr", addr)
		}
		return &Conn{
			host:        host,
			port:        port,
			addr:        addr,
			conn:        nc,
			reader:      bufio.NewReader(nc),
			writer:      bufio.NewWriter(nc),
			opts:        opts,
			connectedAt: time.Now(),
		}, nil
	}

	metrics.DialsTotal.WithLabelValues("failure").Inc()
	logger.Warn("ManageSieve Client: failed to connect", "name", opts.Name, "host", host, "port", port, "error", lastErr)
	return nil, &ConnectionError{Op: "dial", Addr: lastAddr, Err: lastErr}
}

// Host returns the host name the connection was dialed with.
func (c *Conn) Host() string { return c.host }

// Port returns the remote port.
func (c *Conn) Port() int { return c.port }

// RemoteAddr returns the resolved address the connection was opened to.
func (c *Conn) RemoteAddr() string { return c.addr }

// IsConnected reports whether the stream is open. It is false after Close
// and after the server has been seen to close its side.
func (c *Conn) IsConnected() bool {
	if c == nil || c.conn == nil {
		return false
	}
	return !c.closed.Load() && !c.eof.Load()
}

// Send writes one raw command line followed by CRLF.
func (c *Conn) Send(line string) error {
	if c.closed.Load() {
		return &ConnectionError{Op: "write", Addr: c.addr, Err: ErrClosed}
	}

	if c.opts.Debug {
		command := ""
		if fields := strings.Fields(line); len(fields) > 0 {
			command = fields[0]
		}
		logger.Debug("ManageSieve Client: sending command", "name", c.opts.Name, "line", helpers.MaskSensitive(line, command, "AUTHENTICATE"))
	}

	if _, err := c.writer.WriteString(line + "\r\n"); err != nil {
		return &ConnectionError{Op: "write", Addr: c.addr, Err: err}
	}
	if err := c.writer.Flush(); err != nil {
		return &ConnectionError{Op: "write", Addr: c.addr, Err: err}
	}
	metrics.BytesTotal.WithLabelValues("out").Add(float64(len(line) + 2))
	return nil
}

// Command sends line and returns the server's reply.
func (c *Conn) Command(line string) ([]string, error) {
	if err := c.Send(line); err != nil {
		return nil, err
	}
	return c.GetResponse()
}

// Close shuts down the read half of the stream, which unblocks a pending
// read, and then releases the socket. Close must be called at most once;
// a second call returns an error wrapping ErrClosed.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return &ConnectionError{Op: "close", Addr: c.addr, Err: ErrClosed}
	}

	metrics.ConnectionsCurrent.Dec()
	metrics.ConnectionDuration.Observe(time.Since(c.connectedAt).Seconds())

	// The peer may already be gone, in which case CloseRead fails with
	// ENOTCONN. The socket still has to be released.
	if cr, ok := c.conn.(interface{ CloseRead() error }); ok {
		if err := cr.CloseRead(); err != nil && c.opts.Debug {
			logger.Debug("ManageSieve Client: shutdown of read half failed", "name", c.opts.Name, "addr", c.addr, "error", err)
		}
	}

	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("ManageSieve Client: error closing connection", "name", c.opts.Name, "addr", c.addr, "error", err)
		return &ConnectionError{Op: "close", Addr: c.addr, Err: err}
	}

	if c.opts.Debug {
		logger.Debug("ManageSieve Client: connection closed", "name", c.opts.Name, "addr", c.addr)
	}
	return nil
}

func (c *Conn) String() string {
	return fmt.Sprintf("managesieve(%s:%d)", c.host, c.port)
}
