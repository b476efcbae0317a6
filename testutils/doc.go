// Package testutils provides testing utilities shared across packages.
//
// Key components:
//   - SieveServer: a loopback ManageSieve server that answers in single-write
//     bursts, with an optional custom Handler for framing edge cases
//   - FreeAddress: a loopback port with no listener, for connection-refused tests
//
// Example usage:
//
//	func TestGreeting(t *testing.T) {
//		srv := testutils.StartSieveServer(t)
//		conn, err := managesieve.Dial(ctx, srv.Host, srv.Port, managesieve.Options{})
//		// ...
//	}
package testutils
