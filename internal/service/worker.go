package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/Upchuck/internal/adapter/otel"
	"github.com/Strob0t/Upchuck/internal/config"
	"github.com/Strob0t/Upchuck/internal/domain"
	"github.com/Strob0t/Upchuck/internal/domain/agentconfig"
	"github.com/Strob0t/Upchuck/internal/domain/event"
	"github.com/Strob0t/Upchuck/internal/domain/extraction"
	"github.com/Strob0t/Upchuck/internal/domain/proposal"
	"github.com/Strob0t/Upchuck/internal/domain/queue"
	"github.com/Strob0t/Upchuck/internal/logger"
	"github.com/Strob0t/Upchuck/internal/port/agentbackend"
	"github.com/Strob0t/Upchuck/internal/port/database"
	"github.com/Strob0t/Upchuck/internal/port/messagequeue"
	"github.com/Strob0t/Upchuck/internal/resilience"
)

// WorkerService claims queue items and runs every enabled agent against them.
type WorkerService struct {
	store    database.Store
	configs  *AgentConfigService
	backends *agentbackend.Registry
	guards   *resilience.Set
	queue    messagequeue.Queue
	metrics  *cfotel.Metrics
	policy   AutonomyPolicy
	cfg      config.Queue
	pristine string
	wake     chan struct{}
}

// NewWorkerService creates a new WorkerService. q may be nil.
func NewWorkerService(
	store database.Store,
	configs *AgentConfigService,
	backends *agentbackend.Registry,
	guards *resilience.Set,
	q messagequeue.Queue,
	cfg config.Queue,
	pristineVaultPath string,
) *WorkerService {
	return &WorkerService{
		store:    store,
		configs:  configs,
		backends: backends,
		guards:   guards,
		queue:    q,
		cfg:      cfg,
		pristine: pristineVaultPath,
		wake:     make(chan struct{}, 1),
	}
}

// SetMetrics attaches OTEL instruments.
func (s *WorkerService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// MaxRetryCount is the shared retry budget.
func (s *WorkerService) MaxRetryCount() int {
	if s.cfg.MaxRetryCount > 0 {
		return s.cfg.MaxRetryCount
	}
	return queue.DefaultMaxRetryCount
}

// Notify wakes one idle worker. It never blocks.
func (s *WorkerService) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// HandleItemQueued is the queue.item.queued subscription handler.
func (s *WorkerService) HandleItemQueued(_ context.Context, _ string, _ []byte) error {
	s.Notify()
	return nil
}

// Run starts cfg.Workers workers and blocks until ctx is cancelled.
func (s *WorkerService) Run(ctx context.Context) error {
	workers := max(s.cfg.Workers, 1)
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	g, ctx := errgroup.WithContext(ctx)
	for n := range workers {
		g.Go(func() error {
			s.loop(ctx, n, interval)
			return nil
		})
	}
	slog.Info("queue workers started", "workers", workers, "poll_interval", interval)
	return g.Wait()
}

func (s *WorkerService) loop(ctx context.Context, worker int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			processed, err := s.ProcessNext(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Error("queue worker error", "worker", worker, "error", err)
			}
			if !processed || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

// ProcessNext claims the oldest claimable item and processes it. processed
// is false when nothing was claimable.
func (s *WorkerService) ProcessNext(ctx context.Context) (processed bool, err error) {
	it, err := s.store.ClaimNextQueueItem(ctx, s.MaxRetryCount())
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim next: %w", err)
	}
	return true, s.Process(ctx, it)
}

// ProcessItem claims one specific item and processes it.
func (s *WorkerService) ProcessItem(ctx context.Context, it *queue.Item) error {
	claimed, err := s.store.ClaimQueueItem(ctx, it.ID, s.MaxRetryCount())
	if err != nil {
		return err
	}
	return s.Process(ctx, claimed)
}

type agentOutput struct {
	cfg    *agentconfig.AgentConfiguration
	result *agentbackend.Result
}

// Process runs all enabled agents on a claimed (Processing) item and
// persists the outcome. Any agent failure fails the whole attempt, so a
// retry starts from a clean slate.
func (s *WorkerService) Process(ctx context.Context, it *queue.Item) (err error) {
	ctx = logger.WithItemID(ctx, it.ID.String())
	ctx, span := cfotel.StartItemSpan(ctx, it.ID.String(), it.FilePath, it.RetryCount+1)
	defer func() { cfotel.EndSpan(span, err) }()
	if s.metrics != nil {
		s.metrics.ItemsClaimed.Add(ctx, 1)
	}

	configs, err := s.enabledConfigs(ctx)
	if err != nil {
		return s.finish(ctx, it, nil, err)
	}

	outputs := make([]agentOutput, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range configs {
		cfg := &configs[i]
		g.Go(func() error {
			res, err := s.invoke(gctx, it, cfg)
			if err != nil {
				return fmt.Errorf("agent %s: %w", cfg.AgentType, err)
			}
			outputs[i] = agentOutput{cfg: cfg, result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s.finish(ctx, it, nil, err)
	}

	res, err := s.buildResult(ctx, it, outputs)
	return s.finish(ctx, it, res, err)
}

func (s *WorkerService) enabledConfigs(ctx context.Context) ([]agentconfig.AgentConfiguration, error) {
	all, err := s.configs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agent configs: %w", err)
	}
	enabled := all[:0]
	for _, c := range all {
		if c.IsEnabled {
			enabled = append(enabled, c)
		}
	}
	return enabled, nil
}

func (s *WorkerService) invoke(ctx context.Context, it *queue.Item, cfg *agentconfig.AgentConfiguration) (*agentbackend.Result, error) {
	backend, err := s.backends.Lookup(cfg.AgentType)
	if err != nil {
		return nil, err
	}

	req := agentbackend.Request{
		ItemID:            it.ID,
		FilePath:          it.FilePath,
		AgentType:         cfg.AgentType,
		Configuration:     json.RawMessage(cfg.ConfigurationJSON),
		PristineVaultPath: s.pristine,
	}
	if cfg.ModelParameters != nil {
		req.ModelParameters = json.RawMessage(*cfg.ModelParameters)
	}
	if cfg.ProcessingRules != nil {
		req.ProcessingRules = json.RawMessage(*cfg.ProcessingRules)
	}

	ctx, span := cfotel.StartAgentSpan(ctx, cfg.AgentType)
	start := time.Now()
	var res *agentbackend.Result
	err = s.guards.Get(cfg.AgentType).Do(ctx, func(ctx context.Context) error {
		var callErr error
		res, callErr = backend.Process(ctx, req)
		return callErr
	})
	cfotel.EndSpan(span, err)
	if s.metrics != nil {
		s.metrics.RecordAgentCall(ctx, cfg.AgentType, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &agentbackend.Result{}
	}
	return res, nil
}

// bypassed records a proposal a FullyAutonomous agent acted on directly.
// ApplicationID matches the ProposalApplied event in the outbox.
type bypassed struct {
	ApplicationID     uuid.UUID `json:"application_id"`
	AgentType         string    `json:"agent_type"`
	OutputDestination string    `json:"output_destination"`
	Confidence        float64   `json:"confidence"`
}

// buildResult turns agent output into entities according to the autonomy
// policy. Invalid agent output fails the attempt.
func (s *WorkerService) buildResult(ctx context.Context, it *queue.Item, outputs []agentOutput) (*database.ProcessingResult, error) {
	res := &database.ProcessingResult{Item: it}
	var bypasses []bypassed

	for _, out := range outputs {
		cfg := out.cfg
		for _, x := range out.result.Extractions {
			d, err := extraction.New(extraction.Params{
				SourceFilePath:       it.FilePath,
				AgentType:            cfg.AgentType,
				DataType:             x.DataType,
				DataValue:            x.DataValue,
				DataUOM:              x.DataUOM,
				ConfidenceScore:      x.Confidence,
				AgentConfigurationID: cfg.ID,
				Context:              x.Context,
				ProcessingMetadata:   out.result.Metadata,
			})
			if err != nil {
				return nil, fmt.Errorf("agent %s extraction: %w", cfg.AgentType, err)
			}
			res.Extractions = append(res.Extractions, d)
		}

		p := out.result.Proposal
		if p == nil {
			continue
		}
		decision := s.policy.Decide(cfg, p.Confidence)
		if s.metrics != nil {
			s.metrics.Proposals.Add(ctx, 1, metric.WithAttributes(
				attribute.String("agent_type", cfg.AgentType),
				attribute.String("decision", string(decision)),
			))
		}

		switch decision {
		case DecisionSkip:
			continue
		case DecisionBypass:
			if strings.TrimSpace(p.OutputDestination) == "" || strings.TrimSpace(p.CuratedContent) == "" {
				return nil, fmt.Errorf("agent %s proposal: %w", cfg.AgentType,
					domain.NewValidationError("output_destination", "applied proposal needs a destination and curated content"))
			}
			applied := event.ProposalApplied{
				ApplicationID:        uuid.New(),
				QueueItemID:          it.ID,
				AgentType:            cfg.AgentType,
				AgentConfigurationID: cfg.ID,
				SourceFilePath:       it.FilePath,
				OutputDestination:    p.OutputDestination,
				CuratedContent:       p.CuratedContent,
				ConfidenceScore:      p.Confidence,
				AppliedAt:            time.Now().UTC(),
			}
			res.Events = append(res.Events, applied)
			bypasses = append(bypasses, bypassed{applied.ApplicationID, cfg.AgentType, p.OutputDestination, p.Confidence.Value()})
			slog.InfoContext(ctx, "proposal applied without review",
				"agent_type", cfg.AgentType, "confidence", p.Confidence.Value(), "application_id", applied.ApplicationID)
			continue
		}

		ep, err := proposal.New(proposal.Params{
			SourceFilePath:       it.FilePath,
			AgentType:            cfg.AgentType,
			OriginalContent:      p.OriginalContent,
			CuratedContent:       p.CuratedContent,
			ConfidenceScore:      p.Confidence,
			AgentRationale:       p.Rationale,
			OutputDestination:    p.OutputDestination,
			AgentConfigurationID: cfg.ID,
			ProcessingMetadata:   out.result.Metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s proposal: %w", cfg.AgentType, err)
		}
		if decision == DecisionAutoApprove {
			comment := fmt.Sprintf("auto-approved: confidence %s meets threshold %s", p.Confidence, cfg.ConfidenceThreshold)
			if err := ep.Approve(&comment); err != nil {
				return nil, err
			}
		}
		res.Proposals = append(res.Proposals, ep)
	}

	if len(bypasses) > 0 {
		meta, err := mergeMetadata(it.ProcessingMetadata, "bypassed", bypasses)
		if err != nil {
			return nil, err
		}
		it.ProcessingMetadata = meta
	}
	return res, nil
}

// finish completes or fails the item and persists everything in one
// transaction. procErr is the processing failure, if any.
func (s *WorkerService) finish(ctx context.Context, it *queue.Item, res *database.ProcessingResult, procErr error) error {
	if procErr != nil {
		if err := it.FailProcessing(procErr.Error()); err != nil {
			return err
		}
		res = &database.ProcessingResult{Item: it}
	} else if err := it.CompleteProcessing(); err != nil {
		return err
	}

	// The outcome is persisted even when ctx was cancelled mid-attempt,
	// otherwise the item would stay Processing.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.SaveProcessingResult(saveCtx, *res); err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}

	if procErr != nil {
		slog.WarnContext(ctx, "queue item failed",
			"retry_count", it.RetryCount, "retryable", it.CanRetry(s.MaxRetryCount()), "error", procErr)
		if s.metrics != nil {
			s.metrics.ItemsFailed.Add(ctx, 1)
		}
	} else {
		slog.InfoContext(ctx, "queue item completed",
			"extractions", len(res.Extractions), "proposals", len(res.Proposals))
		if s.metrics != nil {
			s.metrics.ItemsCompleted.Add(ctx, 1)
			s.metrics.Extractions.Add(ctx, int64(len(res.Extractions)))
		}
	}

	s.publishDone(ctx, it, res, procErr)
	return procErr
}

func (s *WorkerService) publishDone(ctx context.Context, it *queue.Item, res *database.ProcessingResult, procErr error) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.QueueItemDonePayload{
		ItemID:      it.ID.String(),
		Status:      string(it.Status),
		RetryCount:  it.RetryCount,
		Extractions: len(res.Extractions),
		Proposals:   len(res.Proposals),
	}
	if procErr != nil {
		payload.Error = procErr.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msgID := fmt.Sprintf("%s-%s-%d", it.ID, strings.ToLower(string(it.Status)), it.RetryCount)
	if err := s.queue.PublishMsg(ctx, messagequeue.SubjectQueueItemDone, msgID, data); err != nil {
		slog.WarnContext(ctx, "publish item done failed", "error", err)
	}
}

// mergeMetadata sets key in a JSON object, creating the object if needed.
func mergeMetadata(raw json.RawMessage, key string, value any) (json.RawMessage, error) {
	m := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			m = map[string]any{"previous": raw}
		}
	}
	m[key] = value
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode processing metadata: %w", err)
	}
	return out, nil
}
