package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/cart-events", ResourceName("p1", "topics", " cart-events "))
	assert.Equal(t, "projects/other/topics/x", ResourceName("p1", "topics", "projects/other/topics/x"))
	assert.Equal(t, "", ResourceName("", "topics", "cart-events"))
	assert.Equal(t, "", ResourceName("p1", "topics", "  "))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	assert.Equal(t, []string{"cart-events"}, TopicNames(config.PubSubConfig{CartTopic: "cart-events", DLQTopic: " "}))
	assert.Equal(t, []string{"a", "b"}, TopicNames(config.PubSubConfig{CartTopic: "a", DLQTopic: "b"}))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{CartTopic: "c"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Error(t, c.Ping(context.Background()))
	assert.Nil(t, c.Publisher("x"))
	assert.NoError(t, c.Close())
}

func TestTopicError(t *testing.T) {
	assert.NoError(t, topicError("cart-events", nil))
	assert.EqualError(t, topicError("cart-events", status.Error(codes.NotFound, "gone")), `topic "cart-events" does not exist`)

	cause := status.Error(codes.PermissionDenied, "no access")
	err := topicError("cart-events", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "get topic")
	assert.False(t, errors.Is(err, errProjectIDRequired))
}
