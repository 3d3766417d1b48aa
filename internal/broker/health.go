package broker

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Ping dials the first configured broker to verify connectivity, for the
// health endpoint's dependency check. wb-go/wbf/kafka does not expose a
// readiness probe on its Producer/Consumer wrappers, so this goes around
// them to the underlying segmentio/kafka-go dialer.
func (d *Dispatcher) Ping(ctx context.Context) error {
	if len(d.cfg.Brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", d.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	return conn.Close()
}
