package feed

import (
	"context"
	"errors"
	"testing"

	"lostfound-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRemote struct {
	err   error
	calls int
}

func (s *stubRemote) Publish(ctx context.Context, event model.FeedEvent) error {
	s.calls++
	return s.err
}

func TestRelay_RemoteSuccessSkipsLocalBroadcast(t *testing.T) {
	hub := NewHub()
	var heard int
	hub.OnEvent(func(ctx context.Context, ev model.FeedEvent) { heard++ })
	remote := &stubRemote{}

	require.NoError(t, NewRelay(remote, hub).Publish(context.Background(), model.NewFeedEvent(model.FeedEventCreated, 1)))

	assert.Equal(t, 1, remote.calls)
	// 成功时由 Kafka 消费者负责回送到本地 Hub
	assert.Zero(t, heard)
}

func TestRelay_RemoteFailureBroadcastsLocally(t *testing.T) {
	hub := NewHub()
	var heard []string
	hub.OnEvent(func(ctx context.Context, ev model.FeedEvent) { heard = append(heard, ev.Type) })
	events, cancel := hub.Subscribe()
	defer cancel()
	remote := &stubRemote{err: errors.New("kafka: leader not available")}

	err := NewRelay(remote, hub).Publish(context.Background(), model.NewFeedEvent(model.FeedEventDeleted, 4))

	require.NoError(t, err)
	assert.Equal(t, []string{model.FeedEventDeleted}, heard)
	ev := <-events
	assert.Equal(t, []uint{4}, ev.ItemIDs)
}
