package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"retail-analytics/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel est le sous-ensemble de *amqp.Channel utilisé par le publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message est le corps JSON publié pour chaque table.
type Message struct {
	RunID   string `json:"run_id"`
	Name    string `json:"name"`
	Records any    `json:"records"`
}

// AMQPPublisher diffuse les tables d'un rapport sur un exchange fanout.
type AMQPPublisher struct {
	exchange string
	channel  Channel
	conn     *amqp.Connection
}

// DialPublisher ouvre une connexion AMQP et déclare l'exchange.
func DialPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	p, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewAMQPPublisher déclare l'exchange fanout sur un canal déjà ouvert.
func NewAMQPPublisher(ch Channel, exchange string) (*AMQPPublisher, error) {
	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		false, // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("amqp exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{exchange: exchange, channel: ch}, nil
}

// Publish envoie un message par table, dans l'ordre reçu. S'arrête à la première erreur.
func (p *AMQPPublisher) Publish(ctx context.Context, runID string, artifacts []models.Artifact) error {
	now := time.Now().UTC()
	for _, a := range artifacts {
		body, err := json.Marshal(Message{RunID: runID, Name: a.Name, Records: a.Records})
		if err != nil {
			return fmt.Errorf("artifact %s: %w", a.Name, err)
		}
		err = p.channel.PublishWithContext(ctx,
			p.exchange,
			"",
			false,
			false,
			amqp.Publishing{
				Headers:     amqp.Table{"artifact": a.Name},
				ContentType: "application/json",
				MessageId:   runID,
				Timestamp:   now,
				Body:        body,
			})
		if err != nil {
			return fmt.Errorf("publish %s: %w", a.Name, err)
		}
	}
	log.Infof("export: %d tables publiées sur l'exchange %s (run %s)", len(artifacts), p.exchange, runID)
	return nil
}

func (p *AMQPPublisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
