package notifier

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"
)

// PostgresSource listens for pg_notify payloads written by the roster change
// triggers. Each subscription holds its own connection.
type PostgresSource struct {
	dsn     string
	channel string
}

func NewPostgresSource(dsn, channel string) *PostgresSource {
	return &PostgresSource{dsn: dsn, channel: channel}
}

func (s *PostgresSource) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Close(context.Background())
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	sub := &pgSubscription{
		conn:   conn,
		cancel: cancel,
		lost:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go sub.listen(listenCtx, topic, handler)
	return sub, nil
}

type pgSubscription struct {
	conn   *pgx.Conn
	cancel context.CancelFunc
	lost   chan error
	done   chan struct{}
	once   sync.Once
}

func (p *pgSubscription) listen(ctx context.Context, topic string, handler Handler) {
	defer close(p.done)
	defer p.conn.Close(context.Background())

	for {
		n, err := p.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.lost <- err
			}
			return
		}

		var m Mutation
		if err := json.Unmarshal([]byte(n.Payload), &m); err != nil {
			log.Printf("ERROR [notifier.listen] bad payload on %s: %v", n.Channel, err)
			continue
		}
		if Topic(m.EventID) != topic {
			continue
		}
		handler(m)
	}
}

func (p *pgSubscription) Lost() <-chan error {
	return p.lost
}

func (p *pgSubscription) Unsubscribe() {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
}
