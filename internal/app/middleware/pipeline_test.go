package middleware_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/middleware"
	appoutbox "zedflip/internal/app/outbox"
	"zedflip/internal/app/uow"
	"zedflip/internal/infra/storage/memory"
)

type noteCommand struct {
	Text  string
	Retry string
	Fail  bool
}

func (c noteCommand) Key() string            { return "test.note" }
func (c noteCommand) IdempotencyKey() string { return c.Retry }
func (c noteCommand) ResultPrototype() any   { return new(noteResult) }
func (c noteCommand) Validate() error {
	if c.Text == "" {
		return errEmptyNote
	}
	return nil
}

type noteResult struct {
	Seq  int
	Text string
}

var (
	errEmptyNote = errors.New("note: text required")
	errBoom      = errors.New("note: boom")
)

type noteHandler struct {
	box   appoutbox.Outbox
	mu    sync.Mutex
	calls int
}

func (h *noteHandler) Handle(ctx context.Context, cmd noteCommand) (noteResult, error) {
	h.mu.Lock()
	h.calls++
	seq := h.calls
	h.mu.Unlock()
	if err := h.box.Add(ctx, appoutbox.EventRecord{ID: cmd.Text, Name: "note.created"}); err != nil {
		return noteResult{}, err
	}
	if cmd.Fail {
		return noteResult{}, errBoom
	}
	return noteResult{Seq: seq, Text: cmd.Text}, nil
}

type sinkRecorder struct {
	mu    sync.Mutex
	names []string
}

func (s *sinkRecorder) sink(_ context.Context, rec appoutbox.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, rec.ID)
	return nil
}

func (s *sinkRecorder) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

type observer struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *observer) ObserveCommand(key string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.outcomes[key+":"+status]++
}

func newPipeline(t *testing.T) (commands.Bus, *noteHandler, *sinkRecorder, *observer) {
	t.Helper()
	sink := &sinkRecorder{}
	box := memory.NewOutbox(sink.sink)
	handler := &noteHandler{box: box}
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler(bus, noteCommand{}.Key(), handler)
	obs := &observer{}
	var factory uow.UoWFactory = memory.NewFactory()
	chained := middleware.ChainCommands(bus,
		middleware.Metrics(obs),
		middleware.Validation(middleware.SelfValidator{}),
		middleware.Idempotency(memory.NewIdempotencyStore(time.Hour), nil),
		middleware.OutboxFlush(box, nil),
		middleware.Transaction(factory, nil),
	)
	return chained, handler, sink, obs
}

func TestPipelineFlushesRecordsAfterCommit(t *testing.T) {
	bus, _, sink, obs := newPipeline(t)
	res, err := commands.Dispatch[noteCommand, noteResult](context.Background(), bus, noteCommand{Text: "hello"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Text != "hello" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := sink.got(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("flushed %v", got)
	}
	if obs.outcomes["test.note:ok"] != 1 {
		t.Fatalf("outcomes %v", obs.outcomes)
	}
}

func TestPipelineDropsRecordsOfFailedCommands(t *testing.T) {
	bus, _, sink, obs := newPipeline(t)
	_, err := commands.Dispatch[noteCommand, noteResult](context.Background(), bus, noteCommand{Text: "doomed", Fail: true})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if got := sink.got(); len(got) != 0 {
		t.Fatalf("rolled back records leaked: %v", got)
	}
	if obs.outcomes["test.note:error"] != 1 {
		t.Fatalf("outcomes %v", obs.outcomes)
	}
}

func TestPipelineValidatesBeforeHandling(t *testing.T) {
	bus, handler, _, _ := newPipeline(t)
	_, err := commands.Dispatch[noteCommand, noteResult](context.Background(), bus, noteCommand{})
	if !errors.Is(err, errEmptyNote) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if handler.calls != 0 {
		t.Fatal("invalid command reached the handler")
	}
}

func TestPipelineReplaysIdempotentCommands(t *testing.T) {
	bus, handler, sink, _ := newPipeline(t)
	ctx := context.Background()
	cmd := noteCommand{Text: "once", Retry: "key-1"}

	first, err := commands.Dispatch[noteCommand, noteResult](ctx, bus, cmd)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := commands.Dispatch[noteCommand, noteResult](ctx, bus, cmd)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first != second || handler.calls != 1 {
		t.Fatalf("replay ran the handler again: %+v %+v calls=%d", first, second, handler.calls)
	}
	if got := sink.got(); len(got) != 1 {
		t.Fatalf("replay flushed again: %v", got)
	}

	failing := noteCommand{Text: "retry me", Retry: "key-2", Fail: true}
	if _, err := commands.Dispatch[noteCommand, noteResult](ctx, bus, failing); err == nil {
		t.Fatal("expected failure")
	}
	failing.Fail = false
	if _, err := commands.Dispatch[noteCommand, noteResult](ctx, bus, failing); err != nil {
		t.Fatalf("failures must not be remembered: %v", err)
	}
	if handler.calls != 3 {
		t.Fatalf("calls = %d, want 3", handler.calls)
	}
}
