package notify

import (
	"context"
	"time"

	"github.com/MrEthical07/donorguard/broker"
	"go.uber.org/zap"
)

const (
	DefaultExchange  = "donorguard.notifications"
	RoutingOTPIssued = "otp.issued"
)

// Notification asks a delivery service to send a freshly issued code.
type Notification struct {
	Subject   string        `json:"subject"`
	Purpose   string        `json:"purpose"`
	Code      string        `json:"code"`
	ExpiresIn time.Duration `json:"-"`
	IssuedAt  time.Time     `json:"issued_at"`
	RequestIP string        `json:"request_ip,omitempty"`
}

// Notifier delivers codes by email or SMS. Errors are reported to the caller
// but never roll back an issued code.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

type message struct {
	Notification
	ExpiresInSeconds int64 `json:"expires_in_seconds"`
}

// AMQPNotifier hands codes to the mail/SMS service over RabbitMQ.
type AMQPNotifier struct {
	publisher broker.Publisher
	exchange  string
}

func NewAMQPNotifier(p broker.Publisher, exchange string) *AMQPNotifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPNotifier{publisher: p, exchange: exchange}
}

func (n *AMQPNotifier) Notify(ctx context.Context, note Notification) error {
	return n.publisher.Publish(ctx, n.exchange, RoutingOTPIssued, message{
		Notification:     note,
		ExpiresInSeconds: int64(note.ExpiresIn / time.Second),
	})
}

// LogNotifier writes issuance to the log instead of delivering it. The code
// itself is only included when RevealCode is set, for local development.
type LogNotifier struct {
	Log        *zap.Logger
	RevealCode bool
}

func (n LogNotifier) Notify(_ context.Context, note Notification) error {
	if n.Log == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("subject", note.Subject),
		zap.String("purpose", note.Purpose),
		zap.Duration("expires_in", note.ExpiresIn),
	}
	if n.RevealCode {
		fields = append(fields, zap.String("code", note.Code))
	}
	n.Log.Info("otp issued", fields...)
	return nil
}
