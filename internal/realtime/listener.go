package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Listen relays pg_notify announcements on Channel to hub until ctx is done.
// Announcements without a value are completed from store.
func Listen(ctx context.Context, dsn string, store *DBStore, hub *Hub) error {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logrus.WithError(err).WithField("event", ev).Warn("Realtime listener connection event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return err
	}
	logrus.WithField("channel", Channel).Info("Listening for realtime updates")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; updates sent meanwhile are lost.
			if n == nil {
				continue
			}
			relay(ctx, n.Extra, store, hub)
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					logrus.WithError(err).Warn("Realtime listener ping failed")
				}
			}()
		}
	}
}

func relay(ctx context.Context, payload string, store *DBStore, hub *Hub) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logrus.WithError(err).Warn("Dropping malformed realtime notification")
		return
	}
	if len(ev.Value) == 0 && store != nil {
		raw, err := store.raw(ctx, ev.OrgID, ev.Key)
		if err != nil {
			logrus.WithError(err).WithField("key", ev.Key).Warn("Could not load announced realtime value")
			return
		}
		ev.Value = raw
	}
	hub.Publish(ev)
}
