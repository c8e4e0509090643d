package bus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// Publisher emits analytics lifecycle events for downstream consumers.
type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}

// Subscriber receives trigger events for on-demand analytics runs.
type Subscriber struct {
	Conn *nats.Conn
}

// Event is a run trigger. StationID is optional; empty means all stations.
type Event struct {
	StationID string `json:"station_id"`
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

func (s *Subscriber) Subscribe(subject string, handler func(Event)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var evt Event
		_ = json.Unmarshal(msg.Data, &evt)
		handler(evt)
	})
}
