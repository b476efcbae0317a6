package managesieve

import (
	"context"
	"errors"

	"github.com/migadu/sieveconn/pkg/retry"
)

// DialWithRetry dials like Dial, retrying connection failures with
// exponential backoff. Host resolution failures and context cancellation end
// the retries immediately.
func DialWithRetry(ctx context.Context, host string, port int, opts Options, backoff retry.BackoffConfig) (*Conn, error) {
	var conn *Conn
	err := retry.WithRetryAdvanced(ctx, func() error {
		c, err := Dial(ctx, host, port, opts)
		if err != nil {
			var hostErr *HostResolutionError
			if errors.As(err, &hostErr) || ctx.Err() != nil {
				return retry.Stop(err)
			}
			return err
		}
		conn = c
		return nil
	}, backoff)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
