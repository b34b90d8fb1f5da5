package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"nexus-sale/internal/service/sale/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestEventKafkaAdapterKeysByOrder(t *testing.T) {
	w := &captureWriter{}
	event := &domain.OrderStatusChanged{EventID: "e1", OrderID: 17, From: domain.StatusCart, To: domain.StatusPay, Transition: domain.TransitionPay}

	require.NoError(t, NewEventKafkaAdapter(w).PublishStatusChanged(context.Background(), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "17", string(w.msgs[0].Key))

	var decoded domain.OrderStatusChanged
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, domain.StatusPay, decoded.To)
	assert.Equal(t, domain.TransitionPay, decoded.Transition)
}

type publisherFunc func(ctx context.Context, event *domain.OrderStatusChanged) error

func (f publisherFunc) PublishStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error {
	return f(ctx, event)
}

func TestFanoutPublisherDeliversToAll(t *testing.T) {
	var delivered int
	ok := publisherFunc(func(context.Context, *domain.OrderStatusChanged) error { delivered++; return nil })
	broken := publisherFunc(func(context.Context, *domain.OrderStatusChanged) error { return errors.New("broker down") })

	err := FanoutPublisher{broken, nil, ok}.PublishStatusChanged(context.Background(), &domain.OrderStatusChanged{})
	require.ErrorContains(t, err, "broker down")
	assert.Equal(t, 1, delivered)
}
