package workflow

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nidhogg/agri-assist/internal/generation"
)

// MaxBatch is the largest number of queries Batch accepts.
const MaxBatch = 10

// batchConcurrency bounds how many batch queries run at once.
const batchConcurrency = 4

// Answer resolves query end to end. Simple queries go through retrieval
// and generation once; decomposed ones run a full workflow synchronously.
func (o *Orchestrator) Answer(ctx context.Context, query string, opts RunOptions) (Answer, error) {
	start := o.now()
	cls := o.classifier.Classify(ctx, query)

	if cls.Decomposed {
		st, err := o.create(query, cls, opts)
		if err != nil {
			return Answer{}, err
		}
		for i := range st.Subtasks {
			if _, err := o.Step(ctx, st.ID, i); err != nil {
				o.markFailed(st.ID, err.Error())
				return Answer{}, fmt.Errorf("workflow %s step %d: %w", st.ID, i, err)
			}
		}
		if _, err := o.Summarize(ctx, st.ID); err != nil {
			o.markFailed(st.ID, err.Error())
			return Answer{}, fmt.Errorf("workflow %s summary: %w", st.ID, err)
		}
		ans, err := o.Result(st.ID)
		if err != nil {
			return Answer{}, err
		}
		ans.ProcessingTime = o.now().Sub(start).Seconds()
		return ans, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = o.cfg.TopK
	}
	env := o.retriever.Retrieve(ctx, query, cls, topK)
	gen := o.generator.Generate(ctx, query, cls, env.Context, generation.Request{
		Provider: opts.Provider,
		Model:    opts.Model,
	})
	return Answer{
		Query:           query,
		Response:        gen.Response,
		Intent:          cls.Category,
		Confidence:      cls.Confidence,
		Crop:            cls.Crop,
		Location:        cls.Location,
		BucketUsed:      env.SourceLabel(),
		ContextCount:    len(env.Context),
		Context:         env.Context,
		Status:          gen.Status,
		IntentModel:     cls.Model,
		IntentProvider:  cls.Provider,
		LLMModel:        gen.Model,
		LLMProvider:     gen.Provider,
		ComplexityScore: cls.Complexity,
		ProcessingTime:  o.now().Sub(start).Seconds(),
		Error:           env.Error,
	}, nil
}

// BatchItem is the outcome of one query in a batch.
type BatchItem struct {
	Query  string  `json:"query"`
	Answer *Answer `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// BatchResult holds every item in request order.
type BatchResult struct {
	Results        []BatchItem `json:"results"`
	Total          int         `json:"total_queries"`
	Succeeded      int         `json:"successful_queries"`
	ProcessingTime float64     `json:"processing_time"`
}

// Batch answers up to MaxBatch queries concurrently. A failing query is
// reported in its item and does not fail the batch.
func (o *Orchestrator) Batch(ctx context.Context, queries []string, opts RunOptions) (BatchResult, error) {
	if len(queries) == 0 || len(queries) > MaxBatch {
		return BatchResult{}, fmt.Errorf("%w: got %d", ErrBatchSize, len(queries))
	}
	start := time.Now()
	items := make([]BatchItem, len(queries))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			items[i].Query = q
			ans, err := o.Answer(ctx, q, opts)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Answer = &ans
			return nil
		})
	}
	g.Wait()

	res := BatchResult{Results: items, Total: len(items), ProcessingTime: time.Since(start).Seconds()}
	for _, it := range items {
		if it.Error == "" {
			res.Succeeded++
		}
	}
	return res, nil
}
