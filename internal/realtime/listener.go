package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kwetu-store/internal/util"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Channel is the Postgres NOTIFY channel the schema triggers publish on.
const Channel = "table_changes"

// Listener forwards Postgres notifications into a Hub.
type Listener struct {
	dsn    string
	hub    *Hub
	logger *zap.Logger
}

// NewListener creates a listener for the database at dsn.
func NewListener(dsn string, hub *Hub) *Listener {
	return &Listener{dsn: dsn, hub: hub, logger: util.Component("realtime-listener")}
}

// Run listens until ctx is cancelled. Reconnects are handled by pq.Listener.
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			l.logger.Warn("Change feed connection problem", zap.Error(err))
		case pq.ListenerEventReconnected:
			l.logger.Info("Change feed reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	l.logger.Info("Listening for changes", zap.String("channel", Channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n := <-listener.Notify:
			// nil after a reconnect; changes sent while disconnected are lost.
			if n == nil {
				continue
			}
			change, err := ParseNotification(n.Extra)
			if err != nil {
				l.logger.Warn("Malformed change notification", zap.Error(err))
				continue
			}
			l.hub.Publish(change)

		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("Change feed ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// ParseNotification decodes a trigger payload.
func ParseNotification(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, err
	}
	if c.Table == "" || len(c.Record) == 0 {
		return Change{}, fmt.Errorf("notification missing table or record")
	}
	return c, nil
}
