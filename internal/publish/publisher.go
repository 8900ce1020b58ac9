// Package publish forwards freshly persisted detections to the downstream
// AMQP channel. Delivery is best-effort; the persisted rows are the source
// of truth and a dropped message is never retried.
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"radar-service/internal/domain/radar"
)

// Channel is the slice of amqp091.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch         Channel
	exchange   string
	routingKey string
	source     string
	freshness  time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewPublisher(ch Channel, exchange, routingKey string, freshness time.Duration, log zerolog.Logger) *Publisher {
	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		source:     sourceFromRoutingKey(routingKey),
		freshness:  freshness,
		log:        log,
		now:        time.Now,
	}
}

// sourceFromRoutingKey derives the message source tag from the routing
// key's second dot-segment ("radars.cart.detections" → "CART").
func sourceFromRoutingKey(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return strings.ToUpper(key)
	}
	return strings.ToUpper(parts[1])
}

// PublishBatch emits one message per detection within the freshness
// window. Backfilled data older than the window is persisted but not
// broadcast. A per-message channel failure is logged and swallowed.
func (p *Publisher) PublishBatch(ctx context.Context, detections []radar.Detection) {
	limit := p.now().Add(-p.freshness)
	published, skipped, failed := 0, 0, 0

	for _, d := range detections {
		ts, err := d.Timestamp()
		if err != nil {
			p.log.Warn().Err(err).Str("plate", d.Plate).Msg("detection has unparseable timestamp, not published")
			failed++
			continue
		}
		if ts.Before(limit) {
			skipped++
			continue
		}

		msg := p.Format(d)
		err = p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
			ContentType: "text/plain",
			Timestamp:   p.now(),
			Body:        []byte(msg),
		})
		if err != nil {
			p.log.Warn().Err(err).Str("plate", d.Plate).Msg("publish failed, message dropped")
			failed++
			continue
		}
		published++
	}

	p.log.Info().
		Int("published", published).
		Int("stale_skipped", skipped).
		Int("failed", failed).
		Msg("publish batch complete")
}

// Format renders the fixed pipe-delimited wire format.
func (p *Publisher) Format(d radar.Detection) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s",
		p.source, d.Date.Format("2006-01-02"), d.Time, d.Plate,
		d.Plaza, d.Highway, d.Km, d.Direction)
}
