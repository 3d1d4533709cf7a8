package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/workflow"
)

func startBus(t *testing.T) *Bus {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	rdb, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	return NewBus(rdb, "", zap.NewNop())
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestPublishAndReplay(t *testing.T) {
	bus := startBus(t)
	ctx := context.Background()

	idx := 0
	evs := []workflow.Event{
		{Type: workflow.EventSubtasks, WorkflowID: "wf-1"},
		{Type: workflow.EventSubtaskComplete, WorkflowID: "wf-1", Index: &idx, Result: &workflow.SubtaskResult{Response: "sell in March"}},
		{Type: workflow.EventSummary, WorkflowID: "wf-1", Text: "plan"},
	}
	for _, ev := range evs {
		require.NoError(t, bus.Publish(ctx, ev))
	}
	require.NoError(t, bus.Publish(ctx, workflow.Event{Type: workflow.EventSubtasks, WorkflowID: "wf-2"}))

	got, err := bus.Replay(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, workflow.EventSubtasks, got[0].Type)
	require.NotNil(t, got[1].Result)
	assert.Equal(t, "sell in March", got[1].Result.Response)
	assert.Equal(t, "plan", got[2].Text)

	ttl, err := bus.rdb.TTL(ctx, DefaultPrefix+"wf-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, bus.Delete(ctx, "wf-1"))
	got, err = bus.Replay(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubscribeStopsOnComplete(t *testing.T) {
	bus := startBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// published before the subscriber arrives
	require.NoError(t, bus.Publish(ctx, workflow.Event{Type: workflow.EventSubtasks, WorkflowID: "wf-3"}))

	ch := bus.Subscribe(ctx, "wf-3")
	time.Sleep(300 * time.Millisecond)

	require.NoError(t, bus.Publish(ctx, workflow.Event{Type: workflow.EventSummary, WorkflowID: "wf-3", Text: "done"}))
	require.NoError(t, bus.Publish(ctx, workflow.Event{Type: workflow.EventComplete, WorkflowID: "wf-3"}))
	require.NoError(t, bus.Publish(ctx, workflow.Event{Type: workflow.EventSubtasks, WorkflowID: "wf-3"}))

	var got []workflow.EventType
	for ev := range ch {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []workflow.EventType{workflow.EventSubtasks, workflow.EventSummary, workflow.EventComplete}, got)
}

type planClassifier struct{}

func (planClassifier) Classify(context.Context, string, ...intent.ClassifyOption) intent.Classification {
	return intent.Classification{
		Category:   intent.WorkflowComplex,
		Decomposed: true,
		Subtasks:   []intent.Subtask{{Description: "Market outlook", Category: intent.MarketPrices, Query: "paddy price", Priority: 1}},
	}
}

func TestCleanupDropsEventHistory(t *testing.T) {
	bus := startBus(t)
	ctx := context.Background()

	orch := workflow.New(planClassifier{}, nil, nil, workflow.NewMemoryStore(), bus, workflow.Config{}, zap.NewNop())
	st, err := orch.Create(ctx, "plan my season", workflow.RunOptions{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, workflow.Event{Type: workflow.EventSubtasks, WorkflowID: st.ID}))

	require.True(t, orch.Cleanup(st.ID))

	n, err := bus.rdb.Exists(ctx, DefaultPrefix+st.ID).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
