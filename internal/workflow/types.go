package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/retrieval"
)

// Status is the lifecycle state of a workflow.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

var (
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrSubtaskIndexInvalid = errors.New("subtask index out of range")
	ErrSubtaskOutOfOrder   = errors.New("subtask must run after the previous one")
	ErrSummaryIncomplete   = errors.New("not all subtasks are completed")
	ErrNotDecomposed       = errors.New("query does not require a workflow")
	ErrWorkflowTerminal    = errors.New("workflow already finished")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrBatchSize           = errors.New("batch must hold between 1 and 10 queries")
)

// validTransitions defines allowed state transitions.
var validTransitions = map[Status][]Status{
	StatusInitialized: {StatusProcessing, StatusError},
	StatusProcessing:  {StatusCompleted, StatusError},
}

// Transition returns nil if from→to is a legal transition.
func Transition(from, to Status) error {
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("%w: %q → %q", ErrInvalidTransition, from, to)
	}
	return nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// SubtaskResult is the record kept for one executed subtask.
type SubtaskResult struct {
	SubtaskID    int             `json:"subtask_id"`
	Index        int             `json:"index"`
	Description  string          `json:"description"`
	IntentType   intent.Category `json:"intent_type"`
	Query        string          `json:"query"`
	Response     string          `json:"response"`
	ContextCount int             `json:"context_count"`
	BucketUsed   string          `json:"bucket_used"`
	Status       string          `json:"status"`
	Model        string          `json:"model,omitempty"`
	Provider     string          `json:"provider,omitempty"`
}

// State is everything the orchestrator knows about one workflow.
type State struct {
	ID             string                `json:"workflow_id"`
	Query          string                `json:"original_query"`
	Status         Status                `json:"status"`
	Classification intent.Classification `json:"classification"`
	Subtasks       []intent.Subtask      `json:"subtasks"`
	Completed      []SubtaskResult       `json:"completed_subtasks"`
	Progress       int                   `json:"progress"`
	// Current is the index of the subtask being executed, or -1.
	Current     int        `json:"current_subtask"`
	Summary     string     `json:"summary,omitempty"`
	Error       string     `json:"error,omitempty"`
	Options     RunOptions `json:"options"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *State) clone() *State {
	c := *s
	c.Subtasks = slices.Clone(s.Subtasks)
	c.Completed = slices.Clone(s.Completed)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// RunOptions are per-workflow retrieval and generation overrides.
type RunOptions struct {
	TopK     int    `json:"top_k,omitempty"`
	Provider string `json:"llm_provider,omitempty"`
	Model    string `json:"llm_model,omitempty"`
}

// StatusView is the polling projection of a workflow.
type StatusView struct {
	ID             string          `json:"workflow_id"`
	Query          string          `json:"original_query"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	Total          int             `json:"total_subtasks"`
	CurrentSubtask *int            `json:"current_subtask"`
	Completed      []SubtaskResult `json:"completed_subtasks"`
	Summary        string          `json:"summary,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	ProcessingTime float64         `json:"processing_time"`
}

// Answer is the final response to a query, whether it was answered directly
// or through a workflow.
type Answer struct {
	Query           string               `json:"query"`
	Response        string               `json:"response"`
	Intent          intent.Category      `json:"intent"`
	Confidence      float64              `json:"confidence"`
	Crop            string               `json:"crop,omitempty"`
	Location        string               `json:"location,omitempty"`
	BucketUsed      string               `json:"bucket_used"`
	ContextCount    int                  `json:"context_count"`
	Context         []retrieval.Document `json:"context,omitempty"`
	Status          string               `json:"status"`
	IntentModel     string               `json:"intent_model"`
	IntentProvider  string               `json:"intent_provider"`
	LLMModel        string               `json:"llm_model"`
	LLMProvider     string               `json:"llm_provider"`
	ComplexityScore float64              `json:"complexity_score"`
	IsWorkflow      bool                 `json:"is_workflow"`
	WorkflowID      string               `json:"workflow_id,omitempty"`
	Subtasks        []SubtaskResult      `json:"subtasks,omitempty"`
	ProcessingTime  float64              `json:"processing_time"`
	Error           string               `json:"error,omitempty"`
}

// Labels used on workflow answers.
const (
	workflowBucket = "workflow_multiple"
	workflowEngine = "workflow_engine"
)

// EventType names a stream event.
type EventType string

const (
	EventSubtasks        EventType = "subtasks"
	EventSubtaskComplete EventType = "subtask_complete"
	EventSummary         EventType = "summary"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
)

// Event is one item of a workflow stream.
type Event struct {
	Type       EventType        `json:"type"`
	WorkflowID string           `json:"workflow_id"`
	Subtasks   []intent.Subtask `json:"subtasks,omitempty"`
	Index      *int             `json:"index,omitempty"`
	Result     *SubtaskResult   `json:"result,omitempty"`
	Text       string           `json:"text,omitempty"`
	Message    string           `json:"message,omitempty"`
	Answer     *Answer          `json:"answer,omitempty"`
	Time       time.Time        `json:"timestamp"`
}
