// Package natsagent implements the agent backend port as NATS request/reply
// on agents.process.{agent_type}. Agents run out of process and answer with
// a JSON reply of the form {"result": {...}} or {"error": "..."}.
package natsagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Strob0t/Upchuck/internal/logger"
	"github.com/Strob0t/Upchuck/internal/port/agentbackend"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
)

const headerRequestID = "X-Request-ID"

// ErrNoAgent is returned when no agent is listening on the subject.
var ErrNoAgent = errors.New("no agent responder")

// Requester is the subset of *nats.Conn the backend needs.
type Requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

type reply struct {
	Result *agentbackend.Result `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

var _ agentbackend.Backend = (*Backend)(nil)

// Backend sends agent requests over NATS.
type Backend struct {
	conn    Requester
	timeout time.Duration
}

// New creates a backend. A non-positive timeout leaves the deadline to ctx.
func New(conn Requester, timeout time.Duration) *Backend {
	return &Backend{conn: conn, timeout: timeout}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "nats" }

// Process sends req to the agent type's subject and waits for the reply.
func (b *Backend) Process(ctx context.Context, req agentbackend.Request) (*agentbackend.Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode agent request: %w", err)
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	msg := &nats.Msg{Subject: messagequeue.AgentSubject(req.AgentType), Data: data, Header: nats.Header{}}
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}

	resp, err := b.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("agent %s: %w", req.AgentType, ErrNoAgent)
		}
		return nil, fmt.Errorf("agent %s request: %w", req.AgentType, err)
	}

	var r reply
	if err := json.Unmarshal(resp.Data, &r); err != nil {
		return nil, fmt.Errorf("agent %s reply: %w", req.AgentType, err)
	}
	if r.Error != "" {
		return nil, fmt.Errorf("agent %s: %s", req.AgentType, r.Error)
	}
	if r.Result == nil {
		return &agentbackend.Result{}, nil
	}
	return r.Result, nil
}
