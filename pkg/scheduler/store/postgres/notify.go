package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/distask/scheduler/pkg/scheduler/store"
)

// Publish broadcasts payload on channel using "select pg_notify($1,$2)"
// rather than a raw NOTIFY statement, since NOTIFY does not support bind
// parameters (the original's rationale, carried forward per SPEC_FULL.md
// supplemented feature 5).
func (s *Store) Publish(ctx context.Context, channel, payload string) error {
	_, err := s.pool.Exec(ctx, "select pg_notify($1,$2)", channel, payload)
	if err != nil {
		return fmt.Errorf("postgres: publish notification: %w", err)
	}
	return nil
}

// listenerSubscription holds a dedicated, unpooled connection open for
// LISTEN/WaitForNotification — pgxpool connections are unsuitable because
// the pool may recycle them between notifications.
type listenerSubscription struct {
	conn       *pgx.Conn
	channel    string
	connString string
}

// Subscribe opens a dedicated connection and issues LISTEN on channel.
func (s *Store) Subscribe(ctx context.Context, channel string) (store.Subscription, error) {
	conn, err := pgx.Connect(ctx, s.config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open listener connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "listen \""+channel+"\""); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("postgres: listen %s: %w", channel, err)
	}

	return &listenerSubscription{conn: conn, channel: channel, connString: s.config.ConnString}, nil
}

// Next blocks for the next notification on this subscription's channel,
// reconnecting transparently if the underlying connection drops.
func (l *listenerSubscription) Next(ctx context.Context) (string, error) {
	for {
		n, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if err := l.reconnect(ctx); err != nil {
				return "", fmt.Errorf("postgres: reconnect listener: %w", err)
			}
			continue
		}
		return n.Payload, nil
	}
}

func (l *listenerSubscription) reconnect(ctx context.Context) error {
	l.conn.Close(ctx)

	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, "listen \""+l.channel+"\""); err != nil {
		conn.Close(ctx)
		return err
	}
	l.conn = conn
	return nil
}

// Close releases the dedicated listener connection.
func (l *listenerSubscription) Close() error {
	return l.conn.Close(context.Background())
}
