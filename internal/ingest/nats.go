package ingest

import (
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject the connectivity layer publishes
// heart-rate packets on.
const DefaultSubject = "pulse.hr"

// Subscriber delivers decoded packets from a NATS subject into a channel
// consumed by the single pipeline goroutine.
type Subscriber struct {
	conn *nats.Conn
	sub  *nats.Subscription
	out  chan Packet
}

// Connect dials the NATS server with aggressive reconnection: the wearable
// link gaps arbitrarily, so the bus connection should always come back on
// its own.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("pulse-report"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// Subscribe starts delivering packets from subject on the returned
// subscriber's channel. Malformed packets are logged and dropped.
func Subscribe(conn *nats.Conn, subject string) (*Subscriber, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	s := &Subscriber{
		conn: conn,
		out:  make(chan Packet, 64),
	}
	sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
		p, err := ParsePacket(m.Data)
		if err != nil {
			log.Printf("ingest: dropping packet: %v", err)
			return
		}
		select {
		case s.out <- p:
		default:
			log.Printf("ingest: pipeline backlog, dropping packet at %s", p.Timestamp.Format(time.RFC3339))
		}
	})
	if err != nil {
		return nil, err
	}
	s.sub = sub
	return s, nil
}

// Packets is the delivery channel.
func (s *Subscriber) Packets() <-chan Packet {
	return s.out
}

// Close stops the subscription. The packet channel stays open:
// Unsubscribe does not wait for an in-flight message handler to return,
// so closing it here could panic a handler mid-send. The channel is
// simply garbage-collected with the subscriber.
func (s *Subscriber) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}
