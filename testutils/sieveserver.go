package testutils

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// DefaultGreeting is the capability burst a SieveServer sends on connect.
var DefaultGreeting = []string{
	`"IMPLEMENTATION" "Example Sieve Server"`,
	`"SIEVE" "fileinto vacation envelope"`,
	`"SASL" "PLAIN"`,
	`"VERSION" "1.0"`,
	`OK "ManageSieve server ready."`,
}

// SieveServer is a loopback ManageSieve server for tests. Each reply is
// written to the socket in a single burst.
type SieveServer struct {
	Address string
	Host    string
	Port    int

	// Greeting is sent when a client connects. Nil selects DefaultGreeting;
	// an empty slice sends nothing.
	Greeting []string
	// Replies maps an upper-cased command word to its reply lines.
	Replies map[string][]string
	// Handler, when set, replaces the default session loop.
	Handler func(conn net.Conn)

	listener net.Listener
	mu       sync.Mutex
	conns    []net.Conn
	wg       sync.WaitGroup
	once     sync.Once
}

// NewSieveServer returns an unstarted server listening on 127.0.0.1.
// Configure it, then call Start. The server is closed on test cleanup.
func NewSieveServer(t testing.TB) *SieveServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	tcpAddr := listener.Addr().(*net.TCPAddr)

	s := &SieveServer{
		Address:  listener.Addr().String(),
		Host:     tcpAddr.IP.String(),
		Port:     tcpAddr.Port,
		Replies:  defaultReplies(),
		listener: listener,
	}
	t.Cleanup(s.Close)
	return s
}

// StartSieveServer creates and starts a server with the default greeting.
func StartSieveServer(t testing.TB) *SieveServer {
	t.Helper()
	s := NewSieveServer(t)
	s.Start()
	return s
}

func defaultReplies() map[string][]string {
	return map[string][]string{
		"CAPABILITY": append(DefaultGreeting[:len(DefaultGreeting)-1:len(DefaultGreeting)-1], "OK"),
		"NOOP":       {`OK "NOOP completed"`},
		"LISTSCRIPTS": {
			`"vacation"`,
			`"work" ACTIVE`,
			`OK "Listscripts completed."`,
		},
		"LOGOUT": {`OK "Bye"`},
	}
}

// Start accepts connections in the background until Close.
func (s *SieveServer) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, conn)
			s.mu.Unlock()

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				if s.Handler != nil {
					s.Handler(conn)
					return
				}
				s.serve(conn)
			}()
		}
	}()
}

func (s *SieveServer) serve(conn net.Conn) {
	greeting := s.Greeting
	if greeting == nil {
		greeting = DefaultGreeting
	}
	if err := WriteBurst(conn, greeting...); err != nil {
		return
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		command := strings.ToUpper(fields[0])
		reply, ok := s.Replies[command]
		if !ok {
			reply = []string{`NO "Unknown command"`}
		}
		if err := WriteBurst(conn, reply...); err != nil {
			return
		}
		if command == "LOGOUT" {
			return
		}
	}
}

// Close stops accepting and drops every open session.
func (s *SieveServer) Close() {
	s.once.Do(func() {
		s.listener.Close()
		s.mu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
}

// HostPort returns the server address split for Dial.
func (s *SieveServer) HostPort() (string, int) {
	return s.Host, s.Port
}

// WriteBurst writes lines, each terminated by CRLF, with a single Write call.
func WriteBurst(conn net.Conn, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	_, err := conn.Write([]byte(b.String()))
	return err
}

// FreeAddress returns a loopback host and port that nothing listens on.
func FreeAddress(t testing.TB) (string, int) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find available port: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	listener.Close()
	port, _ := strconv.Atoi(portStr)
	return host, port
}
