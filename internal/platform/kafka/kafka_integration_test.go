//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"idoracle/internal/platform/kafka"
	"idoracle/pkg/testutil/containers"
)

type recordingHandler struct {
	got chan *kafka.Message
}

func (h *recordingHandler) Handle(_ context.Context, msg *kafka.Message) error {
	h.got <- msg
	return nil
}

func TestProduceConsumeRoundTrip(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "idoracle.test.roundtrip"
	require.NoError(t, kafka.EnsureTopic(ctx, []string{rp.Broker}, topic, 1, 1))
	require.NoError(t, kafka.EnsureTopic(ctx, []string{rp.Broker}, topic, 1, 1), "second call is a no-op")

	consumer, err := kafka.NewConsumer([]string{rp.Broker}, "roundtrip-"+time.Now().Format("150405.000"), []string{topic}, nil)
	require.NoError(t, err)
	defer consumer.Close()

	handler := &recordingHandler{got: make(chan *kafka.Message, 1)}
	go func() { _ = consumer.Run(ctx, handler) }()

	producer, err := kafka.NewProducer([]string{rp.Broker}, topic)
	require.NoError(t, err)
	defer producer.Close()

	// The consumer starts at the log end, so keep publishing until it joins.
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, producer.Publish(ctx, []byte("k"), []byte("v")))
		select {
		case msg := <-handler.got:
			require.Equal(t, topic, msg.Topic)
			require.Equal(t, []byte("v"), msg.Value)
			return
		case <-tick.C:
		case <-ctx.Done():
			t.Fatal("no message consumed")
		}
	}
}
