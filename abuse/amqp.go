package abuse

import (
	"context"

	"github.com/MrEthical07/donorguard/broker"
)

// DefaultExchange is the topic exchange abuse events are published to.
const DefaultExchange = "donorguard.abuse"

// AMQPSink publishes events with routing key "abuse.<category>".
type AMQPSink struct {
	publisher broker.Publisher
	exchange  string
}

func NewAMQPSink(p broker.Publisher, exchange string) *AMQPSink {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPSink{
		publisher: p,
		exchange:  exchange,
	}
}

func (s *AMQPSink) Emit(ctx context.Context, event Event) error {
	return s.publisher.Publish(ctx, s.exchange, "abuse."+string(event.Category), event)
}
