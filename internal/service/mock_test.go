package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/agentconfig"
	"github.com/Strob0t/Upchuck/internal/domain/event"
	"github.com/Strob0t/Upchuck/internal/domain/extraction"
	"github.com/Strob0t/Upchuck/internal/domain/proposal"
	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/domain/stats"
	"github.com/Strob0t/Upchuck/internal/port/agentbackend"
	"github.com/Strob0t/Upchuck/internal/port/database"
	"github.com/Strob0t/Upchuck/internal/port/eventstore"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
)

// Ensure mocks implement their ports at compile time.
var (
	_ database.Store       = (*mockStore)(nil)
	_ eventstore.Store     = (*mockEvents)(nil)
	_ messagequeue.Queue   = (*mockQueue)(nil)
	_ agentbackend.Backend = (*mockBackend)(nil)
)

// mockStore is an in-memory database.Store. Mutating methods drain event
// buffers into outbox the way the PostgreSQL store does after commit.
type mockStore struct {
	mu          sync.Mutex
	configs     map[uuid.UUID]agentconfig.AgentConfiguration
	items       map[uuid.UUID]queue.Item
	proposals   map[uuid.UUID]proposal.ElevationProposal
	extractions []extraction.ExtractedData
	outbox      []event.Event

	configGets int

	// Error hooks. Set these to inject failures.
	saveResultErr error
	saveReviewErr error
	updateErr     error
}

func newMockStore() *mockStore {
	return &mockStore{
		configs:   map[uuid.UUID]agentconfig.AgentConfiguration{},
		items:     map[uuid.UUID]queue.Item{},
		proposals: map[uuid.UUID]proposal.ElevationProposal{},
	}
}

func (m *mockStore) ListAgentConfigs(_ context.Context) ([]agentconfig.AgentConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agentconfig.AgentConfiguration, 0, len(m.configs))
	for _, c := range m.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentType < out[j].AgentType })
	return out, nil
}

func (m *mockStore) GetAgentConfig(_ context.Context, id uuid.UUID) (*agentconfig.AgentConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *mockStore) GetAgentConfigByType(_ context.Context, agentType string) (*agentconfig.AgentConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configGets++
	for _, c := range m.configs {
		if c.AgentType == agentType {
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateAgentConfig(_ context.Context, c *agentconfig.AgentConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.configs {
		if existing.AgentType == c.AgentType {
			return domain.ErrConflict
		}
	}
	m.configs[c.ID] = *c
	return nil
}

func (m *mockStore) UpdateAgentConfig(_ context.Context, c *agentconfig.AgentConfiguration, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.configs[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrConflict
	}
	m.configs[c.ID] = *c
	return nil
}

func (m *mockStore) DeleteAgentConfig(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.configs, id)
	return nil
}

func (m *mockStore) EnqueueItem(_ context.Context, it *queue.Item) (*queue.Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.MessageID == it.MessageID {
			return &existing, false, nil
		}
	}
	m.items[it.ID] = *it
	return it, true, nil
}

func (m *mockStore) GetQueueItem(_ context.Context, id uuid.UUID) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it, nil
}

func (m *mockStore) ListQueueItems(_ context.Context, f database.QueueFilter) ([]queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queue.Item
	for _, it := range m.items {
		if f.Status == "" || it.Status == f.Status {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockStore) claimLocked(it queue.Item, maxRetryCount int) (*queue.Item, error) {
	if it.Status == queue.StatusFailed && !it.CanRetry(maxRetryCount) {
		return nil, domain.NewInvalidStateError("queue item", "claim", string(it.Status))
	}
	if err := it.StartProcessing(); err != nil {
		return nil, domain.ErrConflict
	}
	m.items[it.ID] = it
	return &it, nil
}

func (m *mockStore) ClaimQueueItem(_ context.Context, id uuid.UUID, maxRetryCount int) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.claimLocked(it, maxRetryCount)
}

func (m *mockStore) ClaimNextQueueItem(_ context.Context, maxRetryCount int) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []queue.Item
	for _, it := range m.items {
		if it.Status == queue.StatusQueued || it.CanRetry(maxRetryCount) {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		fi, fj := candidates[i].Status == queue.StatusFailed, candidates[j].Status == queue.StatusFailed
		if fi != fj {
			return !fi
		}
		return candidates[i].QueuedAt.Before(candidates[j].QueuedAt)
	})
	return m.claimLocked(candidates[0], maxRetryCount)
}

func (m *mockStore) SaveQueueItem(_ context.Context, it *queue.Item, expected queue.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[it.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != expected {
		return domain.ErrConflict
	}
	m.items[it.ID] = *it
	return nil
}

func (m *mockStore) SaveProcessingResult(_ context.Context, res database.ProcessingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveResultErr != nil {
		return m.saveResultErr
	}
	stored, ok := m.items[res.Item.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != queue.StatusProcessing {
		return domain.ErrConflict
	}
	m.items[res.Item.ID] = *res.Item
	for _, d := range res.Extractions {
		m.outbox = append(m.outbox, d.Events()...)
		d.ClearEvents()
		m.extractions = append(m.extractions, *d)
	}
	for _, p := range res.Proposals {
		m.outbox = append(m.outbox, p.Events()...)
		p.ClearEvents()
		m.proposals[p.ID] = *p
	}
	m.outbox = append(m.outbox, res.Events...)
	return nil
}

func (m *mockStore) ListRetryableQueueItems(_ context.Context, maxRetryCount, limit int) ([]queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queue.Item
	for _, it := range m.items {
		if it.CanRetry(maxRetryCount) && len(out) < limit {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockStore) ListExpiredProcessingItems(_ context.Context, startedBefore time.Time, limit int) ([]queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queue.Item
	for _, it := range m.items {
		if it.Status == queue.StatusProcessing && it.ProcessingStartedAt != nil &&
			it.ProcessingStartedAt.Before(startedBefore) && len(out) < limit {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockStore) CreateExtraction(_ context.Context, d *extraction.ExtractedData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, d.Events()...)
	d.ClearEvents()
	m.extractions = append(m.extractions, *d)
	return nil
}

func (m *mockStore) ListExtractions(_ context.Context, _ database.ExtractionFilter) ([]extraction.ExtractedData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]extraction.ExtractedData(nil), m.extractions...), nil
}

func (m *mockStore) CreateProposal(_ context.Context, p *proposal.ElevationProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, p.Events()...)
	p.ClearEvents()
	m.proposals[p.ID] = *p
	return nil
}

func (m *mockStore) GetProposal(_ context.Context, id uuid.UUID) (*proposal.ElevationProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *mockStore) ListProposals(_ context.Context, f database.ProposalFilter) ([]proposal.ElevationProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []proposal.ElevationProposal
	for _, p := range m.proposals {
		if (f.Status == "" || p.ReviewStatus == f.Status) && (f.AgentType == "" || p.AgentType == f.AgentType) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) SaveProposalReview(_ context.Context, p *proposal.ElevationProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveReviewErr != nil {
		return m.saveReviewErr
	}
	stored, ok := m.proposals[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.ReviewStatus != proposal.StatusPending {
		return domain.ErrConflict
	}
	m.outbox = append(m.outbox, p.Events()...)
	p.ClearEvents()
	m.proposals[p.ID] = *p
	return nil
}

func (m *mockStore) ListStalePendingProposals(_ context.Context, createdBefore time.Time, limit int) ([]proposal.ElevationProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []proposal.ElevationProposal
	for _, p := range m.proposals {
		if p.ReviewStatus == proposal.StatusPending && p.CreatedAt.Before(createdBefore) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) PendingProposalsSummary(_ context.Context) ([]stats.PendingSummary, error) {
	return []stats.PendingSummary{{AgentType: "Statistics", PendingCount: 2}}, nil
}

func (m *mockStore) AgentProcessingStats(_ context.Context) ([]stats.AgentStats, error) {
	return []stats.AgentStats{{AgentType: "Statistics", TotalProposals: 4, ApprovedProposals: 1}}, nil
}

func (m *mockStore) QueueDepth(_ context.Context) (stats.QueueDepth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := stats.QueueDepth{}
	for _, it := range m.items {
		d[string(it.Status)]++
	}
	return d, nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

func (m *mockStore) item(id uuid.UUID) queue.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

// mockQueue records published messages.
type mockQueue struct {
	mu         sync.Mutex
	published  []publishedMsg
	publishErr error
	failAfter  int
	handlers   map[string]messagequeue.Handler
}

type publishedMsg struct {
	subject string
	msgID   string
	data    []byte
}

func (q *mockQueue) Publish(ctx context.Context, subject string, data []byte) error {
	return q.PublishMsg(ctx, subject, "", data)
}

func (q *mockQueue) PublishMsg(_ context.Context, subject, msgID string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil && len(q.published) >= q.failAfter {
		return q.publishErr
	}
	q.published = append(q.published, publishedMsg{subject, msgID, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = map[string]messagequeue.Handler{}
	}
	q.handlers[subject] = h
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) messages(subject string) []publishedMsg {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []publishedMsg
	for _, m := range q.published {
		if m.subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// mockEvents is an in-memory outbox.
type mockEvents struct {
	envs       []event.Envelope
	dispatched map[uuid.UUID]time.Time
	purged     time.Time
}

func (e *mockEvents) ListUndispatched(_ context.Context, limit int) ([]event.Envelope, error) {
	var out []event.Envelope
	for _, env := range e.envs {
		if _, done := e.dispatched[env.ID]; !done && len(out) < limit {
			out = append(out, env)
		}
	}
	return out, nil
}

func (e *mockEvents) MarkDispatched(_ context.Context, ids []uuid.UUID, at time.Time) error {
	if e.dispatched == nil {
		e.dispatched = map[uuid.UUID]time.Time{}
	}
	for _, id := range ids {
		e.dispatched[id] = at
	}
	return nil
}

func (e *mockEvents) LoadByAggregate(_ context.Context, aggregateID uuid.UUID) ([]event.Envelope, error) {
	var out []event.Envelope
	for _, env := range e.envs {
		if env.AggregateID == aggregateID {
			out = append(out, env)
		}
	}
	return out, nil
}

func (e *mockEvents) PurgeDispatched(_ context.Context, before time.Time) (int64, error) {
	e.purged = before
	return int64(len(e.dispatched)), nil
}

// mockBackend answers every request with result or err.
type mockBackend struct {
	mu     sync.Mutex
	result *agentbackend.Result
	err    error
	calls  []agentbackend.Request
}

func (b *mockBackend) Name() string { return "mock" }

func (b *mockBackend) Process(_ context.Context, req agentbackend.Request) (*agentbackend.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, req)
	if b.err != nil {
		return nil, b.err
	}
	return b.result, nil
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
