package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"rhema/internal/client"
	"rhema/internal/models"
	"rhema/internal/rag"
	"rhema/internal/stream"

	"github.com/google/uuid"
)

// FallbackApology replaces an assistant message that failed before any text arrived.
const FallbackApology = "I am praying on this... (The connection to the SpiritOS Prophet seems interrupted. Please check your API Keys and Network.)"

// ErrBusy is returned by Send while a previous answer is still open.
var ErrBusy = errors.New("a response is still streaming")

type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Busy reports whether input should be disabled.
func (s State) Busy() bool {
	return s == StateSending || s == StateStreaming
}

// Querier opens an answer stream. client.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, token, query string) (*client.Response, error)
}

// Snapshot is a copy of the conversation handed to observers.
type Snapshot struct {
	State    State
	Messages []models.ChatMessage
	// Matches is the context count of the latest answer; 0 means no scripture was found.
	Matches int
	Err     error
}

// Conversation is an append-only transcript with one request in flight at most.
type Conversation struct {
	q     Querier
	token string

	mu        sync.Mutex
	messages  []models.ChatMessage
	state     State
	matches   int
	lastErr   error
	cancel    context.CancelFunc
	observers []func(Snapshot)
}

func New(q Querier, token string) *Conversation {
	return &Conversation{q: q, token: token, state: StateIdle}
}

// Subscribe registers fn to run after every state or content change.
// fn runs on the goroutine that called Send.
func (c *Conversation) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) snapshotLocked() Snapshot {
	msgs := make([]models.ChatMessage, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{State: c.state, Messages: msgs, Matches: c.matches, Err: c.lastErr}
}

// Send appends the user's message and streams the answer into a new assistant
// message until the stream ends. It returns nil when the answer completed.
func (c *Conversation) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return rag.ErrEmptyQuery
	}
	c.mu.Lock()
	if c.state.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancel = cancel
	c.lastErr = nil
	c.matches = 0
	c.messages = append(c.messages, models.ChatMessage{
		ID: uuid.NewString(), Role: models.RoleUser, Content: text, Status: models.StatusComplete,
	})
	c.state = StateSending
	c.notifyLocked()

	resp, err := c.q.Query(ctx, c.token, text)
	if err != nil {
		c.mu.Lock()
		if ctx.Err() != nil {
			c.finishLocked(StateCancelled, ctx.Err())
			return ctx.Err()
		}
		c.messages = append(c.messages, models.ChatMessage{
			ID: uuid.NewString(), Role: models.RoleAssistant, Content: FallbackApology, Status: models.StatusFailed,
		})
		c.finishLocked(StateFailed, err)
		return err
	}

	c.mu.Lock()
	c.matches = resp.Matches
	c.messages = append(c.messages, models.ChatMessage{
		ID: uuid.NewString(), Role: models.RoleAssistant, Status: models.StatusStreaming,
	})
	idx := len(c.messages) - 1
	c.state = StateStreaming
	c.notifyLocked()

	// unblock a pending Recv when the conversation is cancelled
	stop := context.AfterFunc(ctx, func() { resp.Stream.Close() })
	defer stop()

	status, err := stream.Drain(ctx, resp.Stream, func(part string) error {
		c.mu.Lock()
		c.messages[idx].Content += part
		c.notifyLocked()
		return nil
	})

	c.mu.Lock()
	msg := &c.messages[idx]
	switch status {
	case stream.Completed:
		msg.Status = models.StatusComplete
		c.finishLocked(StateDone, nil)
		return nil
	case stream.Cancelled:
		msg.Status = models.StatusCancelled
		c.finishLocked(StateCancelled, err)
		return err
	default:
		if msg.Content == "" {
			msg.Content = FallbackApology
		}
		msg.Status = models.StatusFailed
		c.finishLocked(StateFailed, err)
		return err
	}
}

// Cancel stops reading the open answer, keeping what was already received.
func (c *Conversation) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// finishLocked records the terminal state and notifies; it releases c.mu.
func (c *Conversation) finishLocked(state State, err error) {
	c.state = state
	c.lastErr = err
	c.cancel = nil
	c.notifyLocked()
}

// notifyLocked snapshots under the lock, releases it, then calls observers.
func (c *Conversation) notifyLocked() {
	snap := c.snapshotLocked()
	observers := append([]func(Snapshot){}, c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}
