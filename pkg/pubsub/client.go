package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

// Client wraps a Pub/Sub v2 client for publishing cart events.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub cart topic is required")
)

// NewClient connects to Pub/Sub and fails fast when a configured topic is
// missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, projectID: gcp.ProjectID, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", TopicNames(cfg)), "pubsub client initialized")
	}
	return c, nil
}

// TopicNames lists the configured, non-empty topic ids.
func TopicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.CartTopic, cfg.DLQTopic} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Ping checks that every configured topic exists and names each one that
// is missing or unreadable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	if strings.TrimSpace(c.cfg.CartTopic) == "" {
		return errNoTopics
	}
	var errs error
	for _, name := range TopicNames(c.cfg) {
		errs = multierr.Append(errs, topicError(name, c.getTopic(ctx, name)))
	}
	return errs
}

func (c *Client) getTopic(ctx context.Context, name string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: ResourceName(c.projectID, "topics", name),
	})
	return err
}

func topicError(name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", name)
	default:
		return fmt.Errorf("get topic %q: %w", name, err)
	}
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := ResourceName(c.projectID, "topics", name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ResourceName expands an id into projects/<project>/<kind>/<id>. Names
// that are already fully qualified pass through unchanged.
func ResourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
