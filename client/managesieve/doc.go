// Package managesieve implements a minimal ManageSieve client transport.
//
// ManageSieve (RFC 5804) is a line-oriented protocol whose replies do not
// declare their own length. A server answers each command with a burst of
// lines terminated by a status line (OK, NO or BYE). This package owns the
// TCP stream to one server and frames those bursts:
//   - Dial resolves the host and opens the stream
//   - GetResponse waits a bounded time for the first byte, then drains every
//     complete line that is already available
//   - Send and Command write raw command lines
//   - Close shuts down the read half and releases the socket
//
// # Usage
//
//	conn, err := managesieve.Dial(ctx, "sieve.example.com", 4190, managesieve.Options{})
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	greeting, err := conn.GetResponse()
//	if err != nil {
//		return err
//	}
//	if managesieve.ResponseStatus(greeting) != managesieve.StatusOK {
//		return fmt.Errorf("unexpected greeting: %v", greeting)
//	}
//
// # Response framing
//
// The wait budget defaults to 10 attempts of 30ms (300ms). If nothing at all
// arrives within the budget GetResponse fails with ErrTimeout. Once data is
// available, lines are read only while they can be completed from bytes the
// kernel has already received. A line that is still in flight when the drain
// stops is kept and completed by the next call.
//
// Command vocabulary, SASL, TLS and script handling are left to higher layers.
//
// A Conn is not safe for concurrent use, except that Close may be called from
// another goroutine to unblock a pending read.
package managesieve
