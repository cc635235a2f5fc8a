package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects published and consumed by parley.
const (
	SubjectSessionCompleted = "parley.session.completed"
	SubjectSandboxSpawned   = "parley.sandbox.spawned"
	SubjectSandboxDestroyed = "parley.sandbox.destroyed"
	SubjectSandboxHeartbeat = "parley.sandbox.heartbeat"
	SubjectRegistered       = "parley.service.registered"
)

// SessionCompleted announces a finished convergence run to downstream
// consumers (billing, webhook relays).
type SessionCompleted struct {
	TaskID           string  `json:"task_id"`
	OrgID            string  `json:"org_id"`
	Converged        bool    `json:"converged"`
	ConvergenceScore int     `json:"convergence_score"`
	Iterations       int     `json:"iterations"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// SandboxLifecycle announces a sandbox spawn or destroy.
type SandboxLifecycle struct {
	SandboxID string `json:"sandbox_id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

// Heartbeat is emitted by the client embedded in each sandbox.
type Heartbeat struct {
	SandboxID string `json:"sandbox_id"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
