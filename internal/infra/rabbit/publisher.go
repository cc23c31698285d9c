package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
)

// DefaultExchange receives every quiz result published by this service.
const DefaultExchange = "video.quiz"

// publishChannel is the subset of *amqp.Channel the publisher needs.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ResultPublisher sends stored quiz results to a topic exchange, one message
// per result, routed by video: quiz.result.{videoId}. A channel closed by the
// broker is reopened on the next publish, redialing if the connection is gone.
type ResultPublisher struct {
	url      string
	exchange string
	open     func() (publishChannel, <-chan *amqp.Error, error)

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      publishChannel
	notify  <-chan *amqp.Error
	stopped bool
}

var _ app.ResultPublisher = (*ResultPublisher)(nil)

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string) (*ResultPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &ResultPublisher{url: url, exchange: exchange}
	p.open = p.dial
	if err := p.ensureChannel(); err != nil {
		if p.conn != nil {
			p.conn.Close()
		}
		return nil, err
	}
	return p, nil
}

func (p *ResultPublisher) dial() (publishChannel, <-chan *amqp.Error, error) {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	return ch, ch.NotifyClose(make(chan *amqp.Error, 1)), nil
}

// ensureChannel reopens the channel once the broker has closed it.
// Callers hold p.mu.
func (p *ResultPublisher) ensureChannel() error {
	if p.stopped {
		return amqp.ErrClosed
	}
	if p.ch != nil && !p.channelClosed() {
		return nil
	}
	if p.open == nil {
		return amqp.ErrClosed
	}
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch, p.notify = nil, nil
	}
	ch, notify, err := p.open()
	if err != nil {
		return err
	}
	p.ch, p.notify = ch, notify
	return nil
}

func (p *ResultPublisher) channelClosed() bool {
	if p.notify == nil {
		return false
	}
	select {
	case <-p.notify:
		return true
	default:
		return false
	}
}

func (p *ResultPublisher) PublishResult(ctx context.Context, record domain.QuizResultRecord) error {
	msg, err := resultMessage(record)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannel(); err != nil {
		return fmt.Errorf("publish quiz result %s: %w", record.ID, err)
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(record.VideoID), false, false, msg)
	if errors.Is(err, amqp.ErrClosed) && p.open != nil {
		// The close notification may not have arrived yet.
		p.notify = closedNotify
		if rerr := p.ensureChannel(); rerr != nil {
			return fmt.Errorf("publish quiz result %s: %w", record.ID, rerr)
		}
		err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(record.VideoID), false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("publish quiz result %s: %w", record.ID, err)
	}
	return nil
}

func (p *ResultPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// closedNotify marks a channel as closed without waiting for the broker.
var closedNotify = func() <-chan *amqp.Error {
	c := make(chan *amqp.Error)
	close(c)
	return c
}()

func RoutingKey(videoID string) string {
	return "quiz.result." + videoID
}

func resultMessage(record domain.QuizResultRecord) (amqp.Publishing, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode quiz result: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.ID,
		Timestamp:    record.CreatedAt,
		Type:         "quiz.result",
		Body:         body,
	}, nil
}
