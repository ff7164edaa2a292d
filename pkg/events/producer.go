// pkg/events/producer.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	RoutingKeyPurchaseCompleted = "purchase.completed"
	RoutingKeyPurchaseRefunded  = "purchase.refunded"
	RoutingKeyCommissionCreated = "commission.created"
)

type PurchaseEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	ContentKind   string          `json:"content_kind"`
	ContentID     uuid.UUID       `json:"content_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Rail          string          `json:"rail"`
	ReceiptNumber string          `json:"receipt_number"`
	Timestamp     time.Time       `json:"timestamp"`
}

type CommissionEvent struct {
	CommissionID    uuid.UUID       `json:"commission_id"`
	AffiliateID     uuid.UUID       `json:"affiliate_id"`
	AffiliateUserID uuid.UUID       `json:"affiliate_user_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Publisher is implemented by the RabbitMQ producer and its no-op fallback.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

// Fallback is used when no broker is configured or reachable at startup.
type Fallback struct{}

func (Fallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	logrus.WithFields(logrus.Fields{
		"component":   "event_producer",
		"mode":        "fallback",
		"routing_key": routingKey,
	}).Debug("Event publish skipped")
	return nil
}

func (Fallback) Close() {}

type Producer struct {
	exchange string
	conn     *amqp091.Connection

	mu      sync.Mutex
	channel *amqp091.Channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewProducer(amqpURL, exchange string) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Producer{exchange: exchange, conn: conn, channel: ch}, nil
}

// NewPublisher returns a RabbitMQ producer, or the fallback when url is empty
// or the broker cannot be reached.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return Fallback{}
	}

	producer, err := NewProducer(amqpURL, exchange)
	if err != nil {
		logrus.WithError(err).Warn("RabbitMQ unavailable, purchase events will not be published")
		return Fallback{}
	}

	return producer
}

func (p *Producer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"exchange":    p.exchange,
		"routing_key": routingKey,
	}).Warn("Publish failed, reopening channel")

	// One retry on a fresh channel
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
