package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/generation"
	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/metrics"
	"github.com/nidhogg/agri-assist/internal/retrieval"
)

const summarySystemPrompt = "You are an agricultural expert creating comprehensive summaries for complex farming queries. Provide well-structured, actionable summaries."

// DegradedSummary is stored when every summary attempt fails.
const DegradedSummary = "Summary generation failed. Please review individual subtask results."

// Classifier is the intent resolver as seen by the orchestrator.
type Classifier interface {
	Classify(ctx context.Context, query string, opts ...intent.ClassifyOption) intent.Classification
}

// Retriever is the context router as seen by the orchestrator.
type Retriever interface {
	Retrieve(ctx context.Context, query string, c intent.Classification, topK int) retrieval.Envelope
}

// Generator is the generation client as seen by the orchestrator.
type Generator interface {
	Generate(ctx context.Context, query string, c intent.Classification, docs []retrieval.Document, req generation.Request) generation.Result
	Direct(ctx context.Context, req generation.DirectRequest) (generation.Result, error)
}

// Publisher receives a copy of every stream event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// EventHistory is implemented by publishers that retain events per
// workflow. Cleanup deletes the history of removed workflows.
type EventHistory interface {
	Publisher
	Delete(ctx context.Context, workflowID string) error
}

const eventDropTimeout = 5 * time.Second

// Config tunes the orchestrator.
type Config struct {
	TopK             int
	StepDelay        time.Duration
	CleanupGrace     time.Duration
	Retry            RetryPolicy
	SummaryMaxTokens int
	JanitorInterval  time.Duration
	Retention        time.Duration
}

// DefaultConfig returns the stock pacing, grace and retry settings.
func DefaultConfig() Config {
	return Config{
		TopK:             5,
		StepDelay:        500 * time.Millisecond,
		CleanupGrace:     5 * time.Second,
		Retry:            RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond},
		SummaryMaxTokens: 800,
		JanitorInterval:  time.Minute,
		Retention:        30 * time.Minute,
	}
}

// Orchestrator drives decomposed queries through their subtasks and a
// final summary. Steps of one workflow are serialized; different
// workflows run independently.
type Orchestrator struct {
	classifier Classifier
	retriever  Retriever
	generator  Generator
	store      Store
	publisher  Publisher
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	locks sync.Map // workflow id → *sync.Mutex
}

// New creates an orchestrator. store defaults to a MemoryStore and
// publisher may be nil.
func New(classifier Classifier, retriever Retriever, generator Generator, store Store, publisher Publisher, cfg Config, logger *zap.Logger) *Orchestrator {
	d := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = d.TopK
	}
	if cfg.StepDelay < 0 {
		cfg.StepDelay = 0
	}
	if cfg.CleanupGrace <= 0 {
		cfg.CleanupGrace = d.CleanupGrace
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = d.Retry
	}
	if cfg.SummaryMaxTokens <= 0 {
		cfg.SummaryMaxTokens = d.SummaryMaxTokens
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = d.JanitorInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = d.Retention
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Orchestrator{
		classifier: classifier,
		retriever:  retriever,
		generator:  generator,
		store:      store,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (o *Orchestrator) lock(id string) func() {
	m, _ := o.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create classifies query and stores a new workflow for its subtasks.
// Queries that do not decompose return ErrNotDecomposed.
func (o *Orchestrator) Create(ctx context.Context, query string, opts RunOptions) (*State, error) {
	cls := o.classifier.Classify(ctx, query)
	return o.create(query, cls, opts)
}

func (o *Orchestrator) create(query string, cls intent.Classification, opts RunOptions) (*State, error) {
	if !cls.Decomposed || len(cls.Subtasks) == 0 {
		return nil, ErrNotDecomposed
	}
	now := o.now()
	st := &State{
		ID:             uuid.NewString(),
		Query:          query,
		Status:         StatusInitialized,
		Classification: cls,
		Subtasks:       cls.Subtasks,
		Completed:      []SubtaskResult{},
		Current:        -1,
		Options:        opts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.store.Put(st); err != nil {
		return nil, fmt.Errorf("store workflow: %w", err)
	}
	metrics.IncWorkflowTransition(string(StatusInitialized))
	o.refreshActive()
	o.logger.Info("workflow created",
		zap.String("workflow_id", st.ID), zap.Int("subtasks", len(st.Subtasks)))
	return st.clone(), nil
}

// Step executes subtask index. Subtasks run strictly in order: index must
// equal the current progress. Repeating a finished index returns the stored
// record without running it again.
func (o *Orchestrator) Step(ctx context.Context, id string, index int) (SubtaskResult, error) {
	unlock := o.lock(id)
	defer unlock()

	st, err := o.store.Get(id)
	if err != nil {
		return SubtaskResult{}, err
	}
	if index < 0 || index >= len(st.Subtasks) {
		return SubtaskResult{}, fmt.Errorf("%w: %d of %d", ErrSubtaskIndexInvalid, index, len(st.Subtasks))
	}
	if index < len(st.Completed) {
		return st.Completed[index], nil
	}
	if st.Status.Terminal() {
		return SubtaskResult{}, ErrWorkflowTerminal
	}
	if index != st.Progress {
		return SubtaskResult{}, fmt.Errorf("%w: requested %d, next is %d", ErrSubtaskOutOfOrder, index, st.Progress)
	}

	err = o.store.Update(id, func(s *State) error {
		if s.Status == StatusInitialized {
			if err := o.transition(s, StatusProcessing); err != nil {
				return err
			}
		}
		s.Current = index
		s.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		return SubtaskResult{}, err
	}

	rec := o.runSubtask(ctx, st, index)

	err = o.store.Update(id, func(s *State) error {
		s.Completed = append(s.Completed, rec)
		s.Progress = len(s.Completed)
		s.Current = -1
		s.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		return SubtaskResult{}, err
	}
	o.logger.Info("subtask completed",
		zap.String("workflow_id", id),
		zap.Int("index", index),
		zap.String("intent", string(rec.IntentType)),
		zap.String("status", rec.Status))
	return rec, nil
}

func (o *Orchestrator) runSubtask(ctx context.Context, st *State, index int) SubtaskResult {
	sub := st.Subtasks[index]
	query := enhanceQuery(sub.Query, st.Query)

	cls := o.classifier.Classify(ctx, query, intent.SkipDecomposition())
	if (cls.Category == intent.GeneralFarming || cls.Category == intent.Unknown) && sub.Category.Valid() {
		cls.Category = sub.Category
	}
	env := o.retriever.Retrieve(ctx, query, cls, st.Options.TopK)
	if env.Error != "" {
		o.logger.Warn("subtask retrieval degraded",
			zap.String("workflow_id", st.ID), zap.Int("index", index), zap.String("error", env.Error))
	}
	gen := o.generator.Generate(ctx, query, cls, env.Context, generation.Request{
		Provider: st.Options.Provider,
		Model:    st.Options.Model,
		Kind:     sub.Kind,
	})

	return SubtaskResult{
		SubtaskID:    sub.Priority,
		Index:        index,
		Description:  sub.Description,
		IntentType:   sub.Category,
		Query:        query,
		Response:     gen.Response,
		ContextCount: len(env.Context),
		BucketUsed:   env.SourceLabel(),
		Status:       gen.Status,
		Model:        gen.Model,
		Provider:     gen.Provider,
	}
}

func enhanceQuery(subQuery, original string) string {
	return fmt.Sprintf("%s (This is part of a larger query: '%s'. Please provide specific, actionable advice that contributes to the overall solution.)", subQuery, original)
}

// Summarize aggregates every subtask response into the final answer and
// completes the workflow. Backend failures are retried; when every attempt
// fails DegradedSummary is stored and the workflow still completes.
func (o *Orchestrator) Summarize(ctx context.Context, id string) (string, error) {
	unlock := o.lock(id)
	defer unlock()

	st, err := o.store.Get(id)
	if err != nil {
		return "", err
	}
	switch st.Status {
	case StatusCompleted:
		return st.Summary, nil
	case StatusError:
		return "", ErrWorkflowTerminal
	}
	if st.Progress < len(st.Subtasks) {
		return "", fmt.Errorf("%w: %d of %d done", ErrSummaryIncomplete, st.Progress, len(st.Subtasks))
	}

	var summary string
	attempts, err := o.cfg.Retry.Do(ctx, func() error {
		res, err := o.generator.Direct(ctx, generation.DirectRequest{
			System:    summarySystemPrompt,
			User:      summaryPrompt(st.Query, st.Completed),
			MaxTokens: o.cfg.SummaryMaxTokens,
			Provider:  st.Options.Provider,
			Model:     st.Options.Model,
		})
		if err != nil {
			o.logger.Warn("summary attempt failed", zap.String("workflow_id", id), zap.Error(err))
			return err
		}
		summary = res.Response
		return nil
	})
	metrics.ObserveSummaryAttempts(attempts)
	if err != nil {
		o.logger.Warn("summary retries exhausted",
			zap.String("workflow_id", id), zap.Int("attempts", attempts), zap.Error(err))
		summary = DegradedSummary
	}

	err = o.store.Update(id, func(s *State) error {
		if s.Status == StatusInitialized {
			if err := o.transition(s, StatusProcessing); err != nil {
				return err
			}
		}
		if err := o.transition(s, StatusCompleted); err != nil {
			return err
		}
		now := o.now()
		s.Summary = summary
		s.CompletedAt = &now
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return "", err
	}
	o.refreshActive()
	o.logger.Info("workflow completed", zap.String("workflow_id", id), zap.Int("summary_attempts", attempts))
	return summary, nil
}

func summaryPrompt(query string, results []SubtaskResult) string {
	var lines []string
	for _, r := range results {
		if r.Response != "" {
			lines = append(lines, fmt.Sprintf("• %s: %s", r.Description, r.Response))
		}
	}
	return fmt.Sprintf(`Create a comprehensive summary for this complex agricultural query based on the individual subtask results.

Original Query: "%s"

Individual Results:
%s

Provide a well-structured summary that:
1. Addresses the original complex query
2. Integrates insights from all subtasks
3. Provides actionable recommendations
4. Is organized and easy to understand

Format the response with clear sections and bullet points where appropriate.`, query, strings.Join(lines, "\n"))
}

// Fail marks a non-terminal workflow as ERROR with message.
func (o *Orchestrator) Fail(id, message string) error {
	err := o.store.Update(id, func(s *State) error {
		if err := o.transition(s, StatusError); err != nil {
			return err
		}
		s.Error = message
		s.Current = -1
		s.UpdatedAt = o.now()
		return nil
	})
	if err == nil {
		o.refreshActive()
		o.logger.Error("workflow failed", zap.String("workflow_id", id), zap.String("error", message))
	}
	return err
}

// markFailed is Fail for callers that already hold an error to report.
// A workflow that reached a terminal state in the meantime is left as is.
func (o *Orchestrator) markFailed(id, message string) {
	if err := o.Fail(id, message); err != nil && !errors.Is(err, ErrInvalidTransition) {
		o.logger.Warn("mark workflow failed", zap.String("workflow_id", id), zap.Error(err))
	}
}

// Cleanup removes a workflow. It refuses (returns false) for unknown ids,
// workflows still processing, and workflows completed less than the grace
// period ago. The check and the removal happen atomically in the store, so a
// step that starts concurrently either wins or finds the workflow gone.
func (o *Orchestrator) Cleanup(id string) bool {
	st, ok := o.store.DeleteIf(id, o.removable)
	if !ok {
		return false
	}
	o.locks.Delete(id)
	o.dropEvents(id)
	o.refreshActive()
	o.logger.Info("workflow cleaned up", zap.String("workflow_id", id), zap.String("status", string(st.Status)))
	return true
}

func (o *Orchestrator) removable(st *State) bool {
	switch st.Status {
	case StatusProcessing:
		return false
	case StatusCompleted:
		if st.CompletedAt != nil && o.now().Sub(*st.CompletedAt) < o.cfg.CleanupGrace {
			return false
		}
	}
	return true
}

// dropEvents discards the event history the publisher keeps for id.
func (o *Orchestrator) dropEvents(id string) {
	h, ok := o.publisher.(EventHistory)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventDropTimeout)
	defer cancel()
	if err := h.Delete(ctx, id); err != nil {
		o.logger.Warn("drop workflow events", zap.String("workflow_id", id), zap.Error(err))
	}
}

// Status returns the polling view of a workflow.
func (o *Orchestrator) Status(id string) (StatusView, error) {
	st, err := o.store.Get(id)
	if err != nil {
		return StatusView{}, err
	}
	v := StatusView{
		ID:          st.ID,
		Query:       st.Query,
		Status:      st.Status,
		Progress:    st.Progress,
		Total:       len(st.Subtasks),
		Completed:   st.Completed,
		Summary:     st.Summary,
		Error:       st.Error,
		CreatedAt:   st.CreatedAt,
		CompletedAt: st.CompletedAt,
	}
	if st.Current >= 0 {
		cur := st.Current
		v.CurrentSubtask = &cur
	}
	end := o.now()
	if st.CompletedAt != nil {
		end = *st.CompletedAt
	}
	v.ProcessingTime = end.Sub(st.CreatedAt).Seconds()
	return v, nil
}

// Result returns the final answer of a completed workflow. For a workflow
// that has not completed only the id, query and status are set.
func (o *Orchestrator) Result(id string) (Answer, error) {
	st, err := o.store.Get(id)
	if err != nil {
		return Answer{}, err
	}
	if st.Status != StatusCompleted {
		return Answer{Query: st.Query, Status: string(st.Status), IsWorkflow: true, WorkflowID: st.ID, Error: st.Error}, nil
	}
	return o.answerFor(st), nil
}

func (o *Orchestrator) answerFor(st *State) Answer {
	total := 0
	for _, r := range st.Completed {
		total += r.ContextCount
	}
	var elapsed float64
	if st.CompletedAt != nil {
		elapsed = st.CompletedAt.Sub(st.CreatedAt).Seconds()
	}
	return Answer{
		Query:           st.Query,
		Response:        st.Summary,
		Intent:          intent.WorkflowComplex,
		Confidence:      1.0,
		BucketUsed:      workflowBucket,
		ContextCount:    total,
		Status:          generation.StatusSuccess,
		IntentModel:     workflowEngine,
		IntentProvider:  workflowEngine,
		LLMModel:        workflowEngine,
		LLMProvider:     workflowEngine,
		ComplexityScore: st.Classification.Complexity,
		IsWorkflow:      true,
		WorkflowID:      st.ID,
		Subtasks:        st.Completed,
		ProcessingTime:  elapsed,
	}
}

func (o *Orchestrator) transition(s *State, to Status) error {
	if err := Transition(s.Status, to); err != nil {
		return err
	}
	s.Status = to
	metrics.IncWorkflowTransition(string(to))
	return nil
}

func (o *Orchestrator) refreshActive() {
	n := 0
	for _, s := range o.store.List() {
		if !s.Status.Terminal() {
			n++
		}
	}
	metrics.SetWorkflowsActive(n)
}
