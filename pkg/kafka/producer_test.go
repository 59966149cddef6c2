package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer() (*kafka.Producer, *fakeWriter, *fakeWriter) {
	events, items := &fakeWriter{}, &fakeWriter{}
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	p := kafka.NewProducerWithWriters(events, items, kafka.Config{EventsTopic: "events", ItemsTopic: "items"}, logger)
	return p, events, items
}

func header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishConnectionEvent(t *testing.T) {
	t.Run("should key by provider and identity", func(t *testing.T) {
		p, events, _ := newTestProducer()

		err := p.PublishConnectionEvent(context.Background(), &models.ConnectionEvent{
			Type:     models.EventAuthorized,
			Provider: models.ProviderHubSpot,
			OrgID:    "org1",
			UserID:   "user1",
		})
		require.NoError(t, err)
		require.Len(t, events.messages, 1)

		msg := events.messages[0]
		assert.Equal(t, "hubspot:org1:user1", string(msg.Key))
		assert.Equal(t, "org1", header(msg, "org_id"))
		assert.Equal(t, string(models.EventAuthorized), header(msg, "type"))

		var evt models.ConnectionEvent
		require.NoError(t, json.Unmarshal(msg.Value, &evt))
		assert.False(t, evt.Timestamp.IsZero())
		assert.Equal(t, models.ProviderHubSpot, evt.Provider)
	})

	t.Run("should return writer errors", func(t *testing.T) {
		p, events, _ := newTestProducer()
		events.err = errors.New("broker down")

		err := p.PublishConnectionEvent(context.Background(), &models.ConnectionEvent{Type: models.EventAuthorized})
		assert.EqualError(t, err, "broker down")
	})

	t.Run("should reject nil events", func(t *testing.T) {
		p, _, _ := newTestProducer()
		assert.Error(t, p.PublishConnectionEvent(context.Background(), nil))
	})
}

func TestProducer_PublishItems(t *testing.T) {
	t.Run("should publish one message per item", func(t *testing.T) {
		p, _, items := newTestProducer()

		evt := &models.ConnectionEvent{Type: models.EventItemsListed, Provider: models.ProviderNotion, OrgID: "org1", UserID: "user1"}
		err := p.PublishItems(context.Background(), evt, []models.IntegrationItem{
			{ID: "p1", Name: "Roadmap", Type: "page"},
			{ID: "d1", Name: "Tasks", Type: "database"},
		})
		require.NoError(t, err)
		require.Len(t, items.messages, 2)

		var msg kafka.ItemMessage
		require.NoError(t, json.Unmarshal(items.messages[1].Value, &msg))
		assert.Equal(t, "d1", msg.Item.ID)
		assert.Equal(t, "org1", msg.OrgID)
		assert.NotContains(t, string(items.messages[1].Value), "access_token")
	})

	t.Run("should skip empty batches", func(t *testing.T) {
		p, _, items := newTestProducer()
		require.NoError(t, p.PublishItems(context.Background(), &models.ConnectionEvent{}, nil))
		assert.Empty(t, items.messages)
	})
}

func TestProducer_Close(t *testing.T) {
	p, events, items := newTestProducer()
	require.NoError(t, p.Close())
	assert.True(t, events.closed)
	assert.True(t, items.closed)
}
