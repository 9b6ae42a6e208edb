package task_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/engine/mock"
	"github.com/becomeliminal/nim-memory/task"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newEngine(opts ...task.Option) (*task.Engine, *clock) {
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]task.Option{task.WithClock(c.Now)}, opts...)
	return task.New(nil, &task.Config{Expiry: 30 * time.Minute}, opts...), c
}

func TestBookingConversation(t *testing.T) {
	eng, clk := newEngine()
	ctx := context.Background()

	res, err := eng.InitializeTask(ctx, task.TicketBooking, "I want to book a flight from Delhi to Mumbai.")
	require.NoError(t, err)
	require.NotEmpty(t, res.Task.TaskID)
	assert.Equal(t, core.TaskInProgress, res.Task.Status)
	assert.Equal(t, "flight", res.Task.State["type"])
	assert.Equal(t, "Delhi", res.Task.State["from"])
	assert.Equal(t, "Mumbai", res.Task.State["to"])
	assert.Equal(t, []string{"type", "from", "to"}, res.Filled)
	assert.Equal(t, "When is the travel date?", res.Message)
	assert.Len(t, res.Task.State, 6)

	steps := []struct {
		text    string
		message string
	}{
		{"tomorrow", "Which class would you like (Economy, Business, First)?"},
		{"Economy", "How many passengers?"},
		{"2", "Task completed! Your flight booking from Delhi to Mumbai on tomorrow for 2 passengers has been processed."},
	}
	for _, step := range steps {
		clk.Advance(time.Minute)
		res, err = eng.ProcessTask(ctx, res.Task, step.text)
		require.NoError(t, err, step.text)
		assert.Equal(t, step.message, res.Message, step.text)
		assert.Equal(t, clk.now, res.Task.LastActive)
	}
	assert.True(t, res.Completed())
	assert.Empty(t, res.Missing)

	_, err = eng.ProcessTask(ctx, res.Task, "change the date")
	require.ErrorIs(t, err, task.ErrTaskClosed)
}

func TestInitializeTask_CompletesInOneTurn(t *testing.T) {
	eng, _ := newEngine()

	res, err := eng.InitializeTask(context.Background(), task.TicketBooking,
		"Book train tickets for 2 passengers from New York to Boston next friday, business class")
	require.NoError(t, err)
	assert.True(t, res.Completed())
	assert.Equal(t, "Task completed! Your train booking from New York to Boston on next friday for 2 passengers has been processed.", res.Message)
}

func TestInitializeTask_UnknownType(t *testing.T) {
	eng, _ := newEngine()

	_, err := eng.InitializeTask(context.Background(), "hotel_booking", "")
	require.ErrorIs(t, err, task.ErrUnknownTask)

	_, err = eng.ProcessTask(context.Background(), &core.TaskState{Type: "nope", Status: core.TaskInProgress}, "")
	require.ErrorIs(t, err, task.ErrUnknownTask)
}

func TestProcessTask_Expiry(t *testing.T) {
	eng, clk := newEngine()
	ctx := context.Background()

	res, err := eng.InitializeTask(ctx, task.TicketBooking, "I want to book a flight from Delhi to Mumbai.")
	require.NoError(t, err)
	started := res.Task

	clk.Advance(29 * time.Minute)
	res, err = eng.ProcessTask(ctx, started, "tomorrow")
	require.NoError(t, err)
	assert.Equal(t, core.TaskInProgress, res.Task.Status)
	assert.Equal(t, "tomorrow", res.Task.State["date"])

	clk.Advance(31 * time.Minute)
	expired, err := eng.ProcessTask(ctx, res.Task, "Economy")
	require.NoError(t, err)
	assert.True(t, expired.Expired())
	assert.Equal(t, task.ExpiredMessage, expired.Message)
	assert.Empty(t, expired.Task.State["class"], "no extraction once expired")
	assert.Empty(t, expired.Filled)

	// The input task is left untouched.
	assert.Equal(t, core.TaskInProgress, res.Task.Status)

	_, err = eng.ProcessTask(ctx, expired.Task, "Economy")
	require.ErrorIs(t, err, task.ErrTaskClosed)
}

func TestProcessTask_ZeroLastActiveIsNotExpired(t *testing.T) {
	eng, _ := newEngine()

	stored := &core.TaskState{
		TaskID: "t1",
		Type:   task.TicketBooking,
		State:  map[string]string{"type": "flight"},
		Status: core.TaskInProgress,
	}
	res, err := eng.ProcessTask(context.Background(), stored, "from Delhi to Mumbai")
	require.NoError(t, err)
	assert.False(t, res.Expired())
	assert.Equal(t, "Delhi", res.Task.State["from"])
	assert.False(t, res.Task.LastActive.IsZero())
}

func TestProcessTask_FilledSlotsNeverRegress(t *testing.T) {
	eng, _ := newEngine()
	ctx := context.Background()

	res, err := eng.InitializeTask(ctx, task.TicketBooking, "book a bus ticket from Pune")
	require.NoError(t, err)

	filled := func(ts *core.TaskState) int {
		n := 0
		for _, v := range ts.State {
			if v != "" {
				n++
			}
		}
		return n
	}

	prev := filled(res.Task)
	for _, text := range []string{"what do you mean?", "to Goa", "I am not sure about that yet", "next monday", "business", "just me"} {
		res, err = eng.ProcessTask(ctx, res.Task, text)
		require.NoError(t, err, text)
		n := filled(res.Task)
		assert.GreaterOrEqual(t, n, prev, text)
		prev = n
	}
	assert.True(t, res.Completed())
	assert.Equal(t, "Pune", res.Task.State["from"])
	assert.Equal(t, "Goa", res.Task.State["to"])
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, task.ExtractRequest) (map[string]string, error) {
	return nil, errors.New("extractor down")
}

func TestProcessTask_ExtractorFailureAsksAgain(t *testing.T) {
	eng, _ := newEngine(task.WithExtractor(failingExtractor{}))

	res, err := eng.InitializeTask(context.Background(), task.TicketBooking, "book a flight")
	require.NoError(t, err)
	assert.Equal(t, "What kind of ticket are you booking (flight, train, bus)?", res.Message)
	assert.Empty(t, res.Filled)
}

func TestCatalogWorkflow(t *testing.T) {
	catalog, err := task.ParseCatalog([]byte(hotelCatalog))
	require.NoError(t, err)
	eng := task.New(catalog, nil)
	ctx := context.Background()

	typ, ok := eng.DetectTask("please book me a hotel")
	require.True(t, ok)

	res, err := eng.InitializeTask(ctx, typ, "please book me a hotel")
	require.NoError(t, err)
	assert.Equal(t, "Which city?", res.Message, "the opening message is not an answer")

	res, err = eng.ProcessTask(ctx, res.Task, "Goa")
	require.NoError(t, err)
	assert.Equal(t, "Please provide the nights.", res.Message)

	res, err = eng.ProcessTask(ctx, res.Task, "3")
	require.NoError(t, err)
	assert.Equal(t, "Task completed! Hotel in Goa for 3 nights.", res.Message)
}

func TestChainExtractor(t *testing.T) {
	gen := mock.New(`{"date": "2025-05-01", "from": "Ignored", "hotel": "x"}`)
	chain := task.NewChainExtractor(nil,
		task.NewRuleExtractor(),
		task.NewLLMExtractor(engine.NewEngine(gen)),
	)

	got, err := chain.Extract(context.Background(), task.ExtractRequest{
		TaskType: task.TicketBooking,
		Slots:    ticketSlots,
		Text:     "I want to book a flight from Delhi to Mumbai.",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"type": "flight", "from": "Delhi", "to": "Mumbai", "date": "2025-05-01",
	}, got)
	require.Equal(t, 1, gen.Calls())
	assert.Contains(t, gen.Prompts()[0], task.TicketBooking)
}

func TestChainExtractor_LLMFailureIsSkipped(t *testing.T) {
	chain := task.NewChainExtractor(nil,
		task.NewLLMExtractor(engine.NewEngine(mock.New())),
		task.NewRuleExtractor(),
	)

	got, err := chain.Extract(context.Background(), task.ExtractRequest{
		TaskType: task.TicketBooking,
		Slots:    ticketSlots,
		Text:     "book a train",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"type": "train"}, got)
}

func TestLLMExtractor_Unavailable(t *testing.T) {
	assert.Nil(t, task.NewLLMExtractor(nil))
	assert.Nil(t, task.NewLLMExtractor(engine.NewEngine(nil)))

	chain := task.NewChainExtractor(nil, task.NewRuleExtractor(), task.NewLLMExtractor(nil))
	assert.Equal(t, 1, chain.Len())
}

func TestStatus(t *testing.T) {
	eng, _ := newEngine()

	res, err := eng.InitializeTask(context.Background(), task.TicketBooking, "I want to book a flight from Delhi to Mumbai.")
	require.NoError(t, err)

	assert.Equal(t,
		"You are working on a ticket booking. So far: type: flight, from: Delhi, to: Mumbai. "+
			"Still needed: date, class, passenger count. When is the travel date?",
		eng.Status(res.Task))
	assert.Equal(t, "You don't have an active booking.", eng.Status(nil))
}

func TestIsStatusQuery(t *testing.T) {
	for _, q := range []string{"What am I booking?", "booking status", "what's my booking", "What is my booking"} {
		assert.True(t, task.IsStatusQuery(q), q)
	}
	for _, q := range []string{"book a flight", "what is my name"} {
		assert.False(t, task.IsStatusQuery(q), q)
	}
}
