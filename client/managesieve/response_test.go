package managesieve

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/migadu/sieveconn/pkg/metrics"
	"github.com/migadu/sieveconn/testutils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResponseGreeting(t *testing.T) {
	srv := testutils.StartSieveServer(t)
	conn := dialTestServer(t, srv, Options{})
	defer conn.Close()

	lines, err := conn.GetResponse()
	require.NoError(t, err)
	require.NotEmpty(t, lines, "greeting should not be empty")

	// Line counts beyond the status line are not asserted: a burst split by
	// the network may be delivered over two reads.
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "OK"), "last line should be the OK status, got %q", lines[len(lines)-1])
	assert.Equal(t, StatusOK, ResponseStatus(lines))
	assert.Equal(t, testutils.DefaultGreeting[0], lines[0])
	for _, line := range lines {
		assert.False(t, strings.ContainsAny(line, "\r\n"), "line terminators must be stripped: %q", line)
	}
}

func TestGetResponseTimesOutOnSilence(t *testing.T) {
	srv := testutils.StartSieveServer(t)
	conn := dialTestServer(t, srv, Options{})
	defer conn.Close()

	_, err := conn.GetResponse()
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.ResponsesTotal.WithLabelValues("timeout"))

	start := time.Now()
	lines, err := conn.GetResponse()
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, lines)
	assert.ErrorIs(t, err, ErrTimeout)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 300*time.Millisecond, timeoutErr.Budget)
	assert.True(t, timeoutErr.Timeout())

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())

	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	// A timeout leaves the connection usable.
	assert.True(t, conn.IsConnected())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ResponsesTotal.WithLabelValues("timeout")))
}

func TestGetResponseCustomBudget(t *testing.T) {
	srv := testutils.NewSieveServer(t)
	srv.Greeting = []string{}
	srv.Start()

	conn := dialTestServer(t, srv, Options{PollInterval: 10 * time.Millisecond, PollAttempts: 3})
	defer conn.Close()

	start := time.Now()
	_, err := conn.GetResponse()
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

// TestSessionScenario walks through connect, greeting, silent second read
// and close.
func TestSessionScenario(t *testing.T) {
	srv := testutils.NewSieveServer(t)
	srv.Greeting = []string{
		`IMPLEMENTATION "Example Sieve Server"`,
		`SASL "PLAIN"`,
		`OK`,
	}
	srv.Start()

	conn := dialTestServer(t, srv, Options{})
	require.True(t, conn.IsConnected())

	lines, err := conn.GetResponse()
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.Equal(t, "OK", lines[len(lines)-1])

	_, err = conn.GetResponse()
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, conn.Close())
	assert.False(t, conn.IsConnected())
}

func TestCommandReturnsReply(t *testing.T) {
	srv := testutils.StartSieveServer(t)
	conn := dialTestServer(t, srv, Options{Debug: true})
	defer conn.Close()

	_, err := conn.GetResponse()
	require.NoError(t, err)

	lines, err := conn.Command("LISTSCRIPTS")
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.Equal(t, StatusOK, ResponseStatus(lines))
	assert.Contains(t, lines, `"work" ACTIVE`)

	lines, err = conn.Command("DELETESCRIPT \"nope\"")
	require.NoError(t, err)
	assert.Equal(t, StatusNO, ResponseStatus(lines))

	lines, err = conn.Command("LOGOUT")
	require.NoError(t, err)
	assert.Equal(t, []string{`OK "Bye"`}, lines)
}

func TestGetResponseCarriesPartialLine(t *testing.T) {
	release := make(chan struct{})
	srv := testutils.NewSieveServer(t)
	srv.Handler = func(c net.Conn) {
		c.Write([]byte("\"IMPLEMENTATION\" \"Split\"\r\nOK \"rea"))
		<-release
		c.Write([]byte("dy\"\r\n"))
		// Hold the connection open so the client sees no EOF.
		c.Read(make([]byte, 1))
	}
	srv.Start()

	conn := dialTestServer(t, srv, Options{})
	defer conn.Close()

	lines, err := conn.GetResponse()
	require.NoError(t, err)
	assert.Equal(t, []string{`"IMPLEMENTATION" "Split"`}, lines)

	// Nothing new has arrived; the buffered fragment alone is not a response.
	_, err = conn.GetResponse()
	require.ErrorIs(t, err, ErrTimeout)

	close(release)
	lines, err = conn.GetResponse()
	require.NoError(t, err)
	assert.Equal(t, []string{`OK "ready"`}, lines)
}

func TestGetResponseIncompleteFirstLine(t *testing.T) {
	release := make(chan struct{})
	srv := testutils.NewSieveServer(t)
	srv.Handler = func(c net.Conn) {
		c.Write([]byte("OK \"rea"))
		<-release
		c.Write([]byte("dy\"\r\n"))
		c.Read(make([]byte, 1))
	}
	srv.Start()

	conn := dialTestServer(t, srv, Options{})
	defer conn.Close()

	// Bytes arrived but no line finished: empty result, not a timeout.
	lines, err := conn.GetResponse()
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.True(t, conn.IsConnected())

	close(release)
	lines, err = conn.GetResponse()
	require.NoError(t, err)
	assert.Equal(t, []string{`OK "ready"`}, lines)
}

func TestGetResponseServerClosesAfterBye(t *testing.T) {
	srv := testutils.NewSieveServer(t)
	srv.Handler = func(c net.Conn) {
		testutils.WriteBurst(c, `BYE "Server shutting down"`)
	}
	srv.Start()

	conn := dialTestServer(t, srv, Options{})
	defer conn.Close()

	lines, err := conn.GetResponse()
	require.NoError(t, err)
	assert.Equal(t, StatusBYE, ResponseStatus(lines))

	_, err = conn.GetResponse()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, io.EOF)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "read", connErr.Op)
	assert.False(t, conn.IsConnected(), "IsConnected must reflect the closed stream")
}

func TestGetResponseUnterminatedLineAtEOF(t *testing.T) {
	srv := testutils.NewSieveServer(t)
	srv.Handler = func(c net.Conn) {
		c.Write([]byte("\"SIEVE\" \"fileinto\"\r\nBYE"))
	}
	srv.Start()

	conn := dialTestServer(t, srv, Options{})
	defer conn.Close()

	// The close may race with the drain; collect until EOF is observed.
	var lines []string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := conn.GetResponse()
		lines = append(lines, got...)
		if err != nil || !conn.IsConnected() {
			break
		}
	}
	assert.Equal(t, []string{`"SIEVE" "fileinto"`, "BYE"}, lines)
	assert.False(t, conn.IsConnected())
}

func TestResponseStatus(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{name: "empty", lines: nil, want: ""},
		{name: "bare OK", lines: []string{"OK"}, want: StatusOK},
		{name: "OK with text", lines: []string{`"SASL" "PLAIN"`, `OK "ready"`}, want: StatusOK},
		{name: "lowercase no", lines: []string{`no "Quota exceeded"`}, want: StatusNO},
		{name: "bye with code", lines: []string{`BYE (REFERRAL "sieve://other") "Moved"`}, want: StatusBYE},
		{name: "capability line last", lines: []string{`"IMPLEMENTATION" "x"`}, want: ""},
		{name: "blank last line", lines: []string{"OK", ""}, want: ""},
		{name: "prefix is not a status", lines: []string{"OKAY"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResponseStatus(tt.lines))
		})
	}
}

func TestWaitBudgetDefaults(t *testing.T) {
	assert.Equal(t, 300*time.Millisecond, Options{}.WaitBudget())
	assert.Equal(t, 100*time.Millisecond, Options{PollInterval: 50 * time.Millisecond, PollAttempts: 2}.WaitBudget())
}
