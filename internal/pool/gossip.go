package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"idoracle/internal/oracle/models"
	"idoracle/internal/platform/kafka"
)

// Publisher writes one gossip message to the shared topic.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// gossipMessage is the wire form of a propagated response.
type gossipMessage struct {
	Node     string                     `json:"node"`
	Response models.RespondVerification `json:"response"`
}

// Gossip propagates admitted responses to peers over Kafka and imports the
// responses peers publish. Messages a node published itself are skipped.
type Gossip struct {
	node      string
	publisher Publisher
	pool      *Pool
	logger    *slog.Logger
}

func NewGossip(node string, publisher Publisher, logger *slog.Logger) *Gossip {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gossip{node: node, publisher: publisher, logger: logger}
}

// Attach sets the pool gossiped responses are imported into.
func (g *Gossip) Attach(p *Pool) {
	g.pool = p
}

// Propagate implements Propagator.
func (g *Gossip) Propagate(ctx context.Context, call models.RespondVerification) error {
	value, err := json.Marshal(gossipMessage{Node: g.node, Response: call})
	if err != nil {
		return fmt.Errorf("marshal gossip message: %w", err)
	}
	if err := g.publisher.Publish(ctx, call.Account.Bytes(), value); err != nil {
		return fmt.Errorf("publish gossip message: %w", err)
	}
	return nil
}

// Handle imports a gossiped response. It never returns an error: a failed
// import costs only that response, which the originating node keeps in its
// own pool and may include itself.
func (g *Gossip) Handle(ctx context.Context, msg *kafka.Message) error {
	var m gossipMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		g.logger.WarnContext(ctx, "dropping malformed gossip message",
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if m.Node == g.node || g.pool == nil {
		return nil
	}

	err := g.pool.ImportGossiped(ctx, m.Response)
	switch {
	case err == nil:
		g.logger.DebugContext(ctx, "imported gossiped response", "account", m.Response.Account, "from", m.Node)
		return nil
	case IsRejection(err):
		g.logger.DebugContext(ctx, "gossiped response rejected",
			"account", m.Response.Account,
			"from", m.Node,
			"error", err,
		)
		return nil
	default:
		g.logger.WarnContext(ctx, "failed to import gossiped response",
			"account", m.Response.Account,
			"from", m.Node,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
}
