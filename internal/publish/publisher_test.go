package publish

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radar-service/internal/domain/radar"
)

type fakeChannel struct {
	published []string
	failOn    map[string]error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	body := string(msg.Body)
	for substr, err := range f.failOn {
		if substr != "" && strings.Contains(body, substr) {
			return err
		}
	}
	f.published = append(f.published, body)
	return nil
}

var testNow = time.Date(2025, 6, 6, 18, 0, 0, 0, time.UTC)

func newTestPublisher(ch Channel) *Publisher {
	p := NewPublisher(ch, "radars", "radars.cart.detections", 5*time.Hour, zerolog.Nop())
	p.now = func() time.Time { return testNow }
	return p
}

func detectionAt(plate string, hour int) radar.Detection {
	return radar.Detection{
		Date:      time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC),
		Time:      time.Date(2025, 6, 6, hour, 30, 0, 0, time.UTC).Format("15:04:05"),
		Plate:     plate,
		Plaza:     "Praça Sul",
		Highway:   "SP-330",
		Km:        "145",
		Direction: "Sul",
	}
}

func TestPublishBatchFiltersStaleDetections(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	// 17:30 is inside the 5h window ending at 18:00; 11:30 is 6.5h old.
	p.PublishBatch(context.Background(), []radar.Detection{
		detectionAt("FRESH01", 17),
		detectionAt("STALE01", 11),
	})

	require.Len(t, ch.published, 1)
	assert.Contains(t, ch.published[0], "FRESH01")
}

func TestPublishBatchMessageFormat(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	p.PublishBatch(context.Background(), []radar.Detection{detectionAt("ABC1234", 17)})

	require.Len(t, ch.published, 1)
	assert.Equal(t, "CART|2025-06-06|17:30:00|ABC1234|Praça Sul|SP-330|145|Sul", ch.published[0])
}

func TestPublishBatchSwallowsPerMessageFailures(t *testing.T) {
	ch := &fakeChannel{failOn: map[string]error{
		"BAD0001": errors.New("channel closed"),
	}}
	p := newTestPublisher(ch)

	p.PublishBatch(context.Background(), []radar.Detection{
		detectionAt("GOOD001", 16),
		detectionAt("BAD0001", 16),
		detectionAt("GOOD002", 17),
	})

	require.Len(t, ch.published, 2)
	assert.Contains(t, ch.published[0], "GOOD001")
	assert.Contains(t, ch.published[1], "GOOD002")
}

func TestSourceFromRoutingKey(t *testing.T) {
	assert.Equal(t, "CART", sourceFromRoutingKey("radars.cart.detections"))
	assert.Equal(t, "RADARS", sourceFromRoutingKey("radars"))
}
