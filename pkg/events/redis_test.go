package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenancy/pkg/auth"
)

// setupRedisPublisherTest creates a miniredis instance and a publisher pointing at it
func setupRedisPublisherTest(t *testing.T) (*RedisPublisher, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(context.Background(), RedisConfig{
		URL:        "redis://" + mr.Addr(),
		MaxRetries: 3,
		PoolSize:   10,
	})
	require.NoError(t, err)

	p := NewRedisPublisher(client, "")
	t.Cleanup(func() { p.Close() })
	return p, mr
}

func TestRedisPublisher_PushesEnvelope(t *testing.T) {
	p, mr := setupRedisPublisherTest(t)

	event := UserOAuthSignup{
		BaseEvent: NewBaseEvent(),
		User:      &auth.User{ID: "u1", Email: "ada@example.com", Password: "secret"},
		Provider:  "github",
	}
	require.NoError(t, p.Handle(context.Background(), event))

	items, err := mr.List(DefaultQueueKey)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(items[0]), &env))
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, UserOAuthSignupEvent, env.Name)
	assert.True(t, env.OccurredAt.Equal(event.OccurredAt()))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "github", payload["provider"])
	user := payload["user"].(map[string]interface{})
	assert.Equal(t, "u1", user["id"])
	_, hasPassword := user["password"]
	assert.False(t, hasPassword)
}

func TestRedisPublisher_ViaBus(t *testing.T) {
	p, mr := setupRedisPublisherTest(t)
	bus, _ := newTestBus()
	bus.SubscribeAll(p)

	bus.Publish(context.Background(), OrganizationCreated{BaseEvent: NewBaseEvent()})
	bus.Publish(context.Background(), UserOAuthLogin{BaseEvent: NewBaseEvent(), Provider: "google"})

	items, err := mr.List(DefaultQueueKey)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRedisPublisher_ConnectionFailure(t *testing.T) {
	p, mr := setupRedisPublisherTest(t)
	mr.SetError("ERR server unavailable")

	err := p.Handle(context.Background(), UserOAuthLogin{BaseEvent: NewBaseEvent()})
	assert.Error(t, err)
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{URL: "not-a-url"})
	assert.Error(t, err)
}
