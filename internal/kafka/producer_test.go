package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func newTestProducer(w messageWriter) *Producer {
	return &Producer{
		writer:    w,
		retryWait: time.Millisecond,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestProducer_PublishWithRetry_RecoversAfterFailures(t *testing.T) {
	w := &MockWriter{}
	// Настройка моков
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available")).Twice()
	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "cart-1" || msgs[0].Topic != "reservation-events" {
			return false
		}
		var body map[string]string
		return json.Unmarshal(msgs[0].Value, &body) == nil && body["type"] == "hold_created"
	})).Return(nil).Once()

	// Выполнение
	err := newTestProducer(w).PublishWithRetry(context.Background(), "reservation-events", "cart-1", map[string]string{"type": "hold_created"}, 3)

	// Проверки
	require.NoError(t, err)
	w.AssertNumberOfCalls(t, "WriteMessages", 3)
	w.AssertExpectations(t)
}

func TestProducer_PublishWithRetry_GivesUp(t *testing.T) {
	w := &MockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := newTestProducer(w).PublishWithRetry(context.Background(), "reservation-events", "cart-1", "x", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	w.AssertNumberOfCalls(t, "WriteMessages", 2)
}

func TestProducer_PublishWithRetry_StopsOnCancel(t *testing.T) {
	w := &MockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	p := newTestProducer(w)
	p.retryWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.PublishWithRetry(ctx, "reservation-events", "cart-1", "x", 5)
	assert.ErrorIs(t, err, context.Canceled)
	w.AssertNumberOfCalls(t, "WriteMessages", 1)
}

func TestProducer_CloseClosesWriter(t *testing.T) {
	w := &MockWriter{}
	w.On("Close").Return(nil).Once()
	require.NoError(t, newTestProducer(w).Close())
	w.AssertExpectations(t)
}
