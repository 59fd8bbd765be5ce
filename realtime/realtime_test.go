package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/session"
	"github.com/kbukum/medscribe/transcription"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type write struct {
	sessionID string
	text      string
}

type fakeGateway struct {
	mu       sync.Mutex
	records  map[string]*session.Record
	writes   []write
	loadErr  error
	writeErr error
}

func newFakeGateway(records ...session.Record) *fakeGateway {
	g := &fakeGateway{records: map[string]*session.Record{}}
	for i := range records {
		r := records[i]
		g.records[r.ID] = &r
	}
	return g
}

func (g *fakeGateway) LoadSession(_ context.Context, id string) (*session.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return nil, g.loadErr
	}
	r, ok := g.records[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	cp := *r
	return &cp, nil
}

func (g *fakeGateway) AppendTranscript(_ context.Context, id, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writeErr != nil {
		return g.writeErr
	}
	g.writes = append(g.writes, write{sessionID: id, text: text})
	return nil
}

func (g *fakeGateway) setWriteErr(err error) {
	g.mu.Lock()
	g.writeErr = err
	g.mu.Unlock()
}

func (g *fakeGateway) Writes() []write {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]write(nil), g.writes...)
}

// scriptedBackend returns queued results in order. With entered set, each
// call announces itself and then waits for release.
type scriptedBackend struct {
	mu      sync.Mutex
	results []result

	entered chan struct{}
	release chan struct{}
}

type result struct {
	text string
	err  error
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Transcribe(_ context.Context, _ []byte) (string, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.results) == 0 {
		return "", nil
	}
	r := b.results[0]
	b.results = b.results[1:]
	return r.text, r.err
}

func texts(ts ...string) *scriptedBackend {
	b := &scriptedBackend{}
	for _, t := range ts {
		b.results = append(b.results, result{text: t})
	}
	return b
}

type emitted struct {
	connID  string
	event   string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(connID, event string, payload any) {
	e.mu.Lock()
	e.events = append(e.events, emitted{connID, event, payload})
	e.mu.Unlock()
}

func (e *recordingEmitter) Events(event string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.events {
		if ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordingEmitter) ErrorCodes() []ErrorCode {
	var codes []ErrorCode
	for _, ev := range e.Events(EventTranscriptionError) {
		codes = append(codes, ev.payload.(ErrorPayload).Code)
	}
	return codes
}

type harness struct {
	clock    *fakeClock
	gateway  *fakeGateway
	backend  *scriptedBackend
	emitter  *recordingEmitter
	registry *Registry
	coord    *Coordinator
}

func newHarness(t *testing.T, backend *scriptedBackend) *harness {
	t.Helper()
	h := &harness{
		clock:   newFakeClock(),
		gateway: newFakeGateway(session.Record{ID: "s1", DoctorID: "u1", Transcript: ""}),
		backend: backend,
		emitter: &recordingEmitter{},
	}
	h.registry = NewRegistry(h.clock.Now)
	h.coord = NewCoordinator(Config{}, Deps{
		Registry: h.registry,
		Gateway:  h.gateway,
		Backend:  backend,
		Emitter:  h.emitter,
		Clock:    h.clock.Now,
	})
	return h
}

func (h *harness) start(t *testing.T, connID string) {
	t.Helper()
	if err := h.coord.Start(context.Background(), connID, StartRequest{SessionID: "s1", UserID: "u1"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

var audio = []byte("RIFF")

func TestStart_OwnershipEnforced(t *testing.T) {
	h := newHarness(t, texts())

	err := h.coord.Start(context.Background(), "c1", StartRequest{SessionID: "s1", UserID: "u2"})
	if CodeOf(err) != CodeAccessDenied {
		t.Fatalf("Start() code = %q, want ACCESS_DENIED", CodeOf(err))
	}
	if _, ok := h.registry.Get("c1"); ok {
		t.Error("registry entry created for non-owner")
	}
	if codes := h.emitter.ErrorCodes(); len(codes) != 1 || codes[0] != CodeAccessDenied {
		t.Errorf("emitted codes = %v", codes)
	}
	if len(h.emitter.Events(EventTranscriptionStarted)) != 0 {
		t.Error("started emitted for non-owner")
	}
}

func TestStart_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     StartRequest
		loadErr error
		want    ErrorCode
	}{
		{"missing ids", StartRequest{SessionID: "s1"}, nil, CodeInvalidRequest},
		{"unknown session", StartRequest{SessionID: "nope", UserID: "u1"}, nil, CodeSessionNotFound},
		{"store outage", StartRequest{SessionID: "s1", UserID: "u1"}, apperrors.DatabaseError(errors.New("conn refused")), CodeSessionLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, texts())
			h.gateway.loadErr = tt.loadErr

			err := h.coord.Start(context.Background(), "c1", tt.req)
			if CodeOf(err) != tt.want {
				t.Errorf("code = %q, want %q", CodeOf(err), tt.want)
			}
			if h.registry.Len() != 0 {
				t.Error("registry should stay empty")
			}
		})
	}
}

func TestStart_SeedsTranscriptAndRejectsDuplicate(t *testing.T) {
	h := newHarness(t, texts("more"))
	h.gateway.records["s1"].Transcript = "earlier text"
	h.start(t, "c1")

	started := h.emitter.Events(EventTranscriptionStarted)
	if len(started) != 1 || started[0].payload.(Started).SessionID != "s1" {
		t.Fatalf("started events = %v", started)
	}

	err := h.coord.Start(context.Background(), "c1", StartRequest{SessionID: "s1", UserID: "u1"})
	if CodeOf(err) != CodeAlreadyActive {
		t.Errorf("duplicate Start() code = %q, want ALREADY_ACTIVE", CodeOf(err))
	}

	_ = h.coord.Chunk(context.Background(), "c1", audio, false)
	e, _ := h.registry.Get("c1")
	if e.Transcript != "earlier text more" {
		t.Errorf("transcript = %q", e.Transcript)
	}
}

func TestChunk_AppendsInOrderSkippingEmpty(t *testing.T) {
	h := newHarness(t, texts("hello", "", "world"))
	h.start(t, "c1")

	for range 3 {
		if err := h.coord.Chunk(context.Background(), "c1", audio, false); err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}
	}

	e, _ := h.registry.Get("c1")
	if e.Transcript != "hello world" {
		t.Errorf("transcript = %q, want %q", e.Transcript, "hello world")
	}
	chunks := h.emitter.Events(EventTranscriptChunk)
	if len(chunks) != 2 {
		t.Fatalf("chunk events = %d, want 2", len(chunks))
	}
	if got := chunks[1].payload.(ChunkTranscribed); got.Text != "world" || got.Timestamp != h.clock.Now().UnixMilli() {
		t.Errorf("second chunk = %+v", got)
	}
}

func TestChunk_FlushThreshold(t *testing.T) {
	h := newHarness(t, texts("one", "two", "three"))
	h.start(t, "c1")
	ctx := context.Background()

	h.clock.Advance(time.Second)
	_ = h.coord.Chunk(ctx, "c1", audio, false)
	h.clock.Advance(time.Second)
	_ = h.coord.Chunk(ctx, "c1", audio, false)
	if w := h.gateway.Writes(); len(w) != 0 {
		t.Fatalf("writes before threshold = %v", w)
	}

	h.clock.Advance(4 * time.Second)
	_ = h.coord.Chunk(ctx, "c1", audio, false)
	w := h.gateway.Writes()
	if len(w) != 1 {
		t.Fatalf("writes after threshold = %d, want 1", len(w))
	}
	if w[0].sessionID != "s1" || w[0].text != "one two three" {
		t.Errorf("write = %+v", w[0])
	}
	e, _ := h.registry.Get("c1")
	if !e.LastFlushAt.Equal(h.clock.Now()) || e.Dirty() {
		t.Errorf("entry after flush = %+v", e)
	}
}

func TestChunk_LastForcesFlush(t *testing.T) {
	t.Run("with text", func(t *testing.T) {
		h := newHarness(t, texts("final words"))
		h.start(t, "c1")

		if err := h.coord.Chunk(context.Background(), "c1", audio, true); err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}
		w := h.gateway.Writes()
		if len(w) != 1 || w[0].text != "final words" {
			t.Errorf("writes = %v", w)
		}
		if got := h.emitter.Events(EventTranscriptChunk)[0].payload.(ChunkTranscribed); !got.IsLast {
			t.Error("isLast not echoed")
		}
	})

	t.Run("empty text with pending changes", func(t *testing.T) {
		h := newHarness(t, texts("pending", ""))
		h.start(t, "c1")
		_ = h.coord.Chunk(context.Background(), "c1", audio, false)

		if err := h.coord.Chunk(context.Background(), "c1", audio, true); err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}
		if w := h.gateway.Writes(); len(w) != 1 || w[0].text != "pending" {
			t.Errorf("writes = %v", w)
		}
	})

	t.Run("empty text with nothing new", func(t *testing.T) {
		h := newHarness(t, texts(""))
		h.start(t, "c1")

		if err := h.coord.Chunk(context.Background(), "c1", audio, true); err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}
		if w := h.gateway.Writes(); len(w) != 0 {
			t.Errorf("writes = %v, want none", w)
		}
	})
}

func TestChunk_FlushFailureKeepsText(t *testing.T) {
	h := newHarness(t, texts("kept", "more"))
	h.start(t, "c1")
	h.gateway.setWriteErr(apperrors.DatabaseError(errors.New("timeout")))

	err := h.coord.Chunk(context.Background(), "c1", audio, true)
	if CodeOf(err) != CodeFlushFailed {
		t.Fatalf("code = %q, want FLUSH_FAILED", CodeOf(err))
	}
	e, ok := h.registry.Get("c1")
	if !ok || e.Transcript != "kept" || !e.Dirty() {
		t.Errorf("entry after failed flush = %+v, ok=%v", e, ok)
	}

	h.gateway.setWriteErr(nil)
	_ = h.coord.Chunk(context.Background(), "c1", audio, true)
	if w := h.gateway.Writes(); len(w) != 1 || w[0].text != "kept more" {
		t.Errorf("writes = %v", w)
	}
}

func TestChunk_BackendFailureIsolation(t *testing.T) {
	backend := &scriptedBackend{results: []result{
		{text: "before"},
		{err: &transcription.Failure{Provider: "scripted", Message: "HTTP 503", Retryable: true}},
		{text: "after"},
	}}
	h := newHarness(t, backend)
	h.start(t, "c1")
	ctx := context.Background()

	_ = h.coord.Chunk(ctx, "c1", audio, false)
	err := h.coord.Chunk(ctx, "c1", audio, false)
	if CodeOf(err) != CodeChunkProcessingFailed {
		t.Fatalf("code = %q, want CHUNK_PROCESSING_FAILED", CodeOf(err))
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Details != "HTTP 503" || !pe.Retryable() {
		t.Errorf("error = %+v", pe)
	}

	e, ok := h.registry.Get("c1")
	if !ok || e.Transcript != "before" {
		t.Fatalf("entry after failure = %+v, ok=%v", e, ok)
	}

	if err := h.coord.Chunk(ctx, "c1", audio, false); err != nil {
		t.Fatalf("Chunk() after failure error = %v", err)
	}
	e, _ = h.registry.Get("c1")
	if e.Transcript != "before after" {
		t.Errorf("transcript = %q", e.Transcript)
	}
}

func TestChunk_Errors(t *testing.T) {
	h := newHarness(t, texts())
	if err := h.coord.Chunk(context.Background(), "idle", audio, false); CodeOf(err) != CodeNoActiveSession {
		t.Errorf("idle chunk code = %q", CodeOf(err))
	}

	h.start(t, "c1")
	err := h.coord.Chunk(context.Background(), "c1", nil, false)
	if CodeOf(err) != CodeInvalidRequest {
		t.Errorf("empty audio code = %q", CodeOf(err))
	}
}

func TestStop_FlushesThenRemoves(t *testing.T) {
	h := newHarness(t, texts("first", "second"))
	h.start(t, "c1")
	ctx := context.Background()

	h.gateway.setWriteErr(errors.New("down"))
	_ = h.coord.Chunk(ctx, "c1", audio, true)
	_ = h.coord.Chunk(ctx, "c1", audio, false)
	h.gateway.setWriteErr(nil)

	if !h.coord.IsTranscribing("s1") {
		t.Error("session should be transcribing before stop")
	}
	if err := h.coord.Stop(ctx, "c1"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, ok := h.registry.Get("c1"); ok {
		t.Error("entry still present after stop")
	}
	if h.coord.IsTranscribing("s1") {
		t.Error("session still transcribing after stop")
	}
	w := h.gateway.Writes()
	if len(w) != 1 || w[0].text != "first second" {
		t.Errorf("writes = %v", w)
	}
	stopped := h.emitter.Events(EventTranscriptionStopped)
	if len(stopped) != 1 {
		t.Fatalf("stopped events = %d", len(stopped))
	}
	if got := stopped[0].payload.(Stopped); got.SessionID != "s1" || got.FinalTranscript != "first second" {
		t.Errorf("stopped = %+v", got)
	}

	if err := h.coord.Stop(ctx, "c1"); CodeOf(err) != CodeNoActiveSession {
		t.Errorf("second Stop() code = %q", CodeOf(err))
	}
}

func TestStop_FlushFailureStillStops(t *testing.T) {
	h := newHarness(t, texts("words"))
	h.start(t, "c1")
	_ = h.coord.Chunk(context.Background(), "c1", audio, false)
	h.gateway.setWriteErr(errors.New("down"))

	err := h.coord.Stop(context.Background(), "c1")
	if CodeOf(err) != CodeFlushFailed {
		t.Errorf("code = %q, want FLUSH_FAILED", CodeOf(err))
	}
	if h.registry.Len() != 0 {
		t.Error("entry should be removed")
	}
	if len(h.emitter.Events(EventTranscriptionStopped)) != 1 {
		t.Error("stopped not emitted")
	}
}

func TestDisconnect_FlushesSilently(t *testing.T) {
	h := newHarness(t, texts("bye"))
	h.start(t, "c1")
	_ = h.coord.Chunk(context.Background(), "c1", audio, false)
	before := len(h.emitter.events)

	h.coord.Disconnect(context.Background(), "c1")

	if h.registry.Len() != 0 {
		t.Error("entry should be removed")
	}
	if w := h.gateway.Writes(); len(w) != 1 || w[0].text != "bye" {
		t.Errorf("writes = %v", w)
	}
	if len(h.emitter.events) != before {
		t.Error("disconnect must not emit")
	}

	h.coord.Disconnect(context.Background(), "never-started")
}

func TestDisconnectAll(t *testing.T) {
	h := newHarness(t, texts("one", "two"))
	h.gateway.records["s2"] = &session.Record{ID: "s2", DoctorID: "u1"}
	ctx := context.Background()

	h.start(t, "a")
	if err := h.coord.Start(ctx, "b", StartRequest{SessionID: "s2", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	_ = h.coord.Chunk(ctx, "a", audio, false)
	_ = h.coord.Chunk(ctx, "b", audio, false)

	if n := h.coord.DisconnectAll(ctx); n != 2 {
		t.Errorf("DisconnectAll() = %d, want 2", n)
	}
	if h.registry.Len() != 0 {
		t.Error("registry should be empty")
	}
	if w := h.gateway.Writes(); len(w) != 2 {
		t.Errorf("writes = %v", w)
	}
}

func TestReaper_SweepEvictsOnlyStale(t *testing.T) {
	h := newHarness(t, texts())
	h.gateway.records["s2"] = &session.Record{ID: "s2", DoctorID: "u1"}
	ctx := context.Background()

	h.start(t, "old")
	h.clock.Advance(10 * time.Minute)
	if err := h.coord.Start(ctx, "fresh", StartRequest{SessionID: "s2", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(21 * time.Minute)

	reaper := NewReaper(h.coord, nil)
	if n := reaper.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, ok := h.registry.Get("old"); ok {
		t.Error("stale entry not evicted")
	}
	if _, ok := h.registry.Get("fresh"); !ok {
		t.Error("fresh entry evicted")
	}
	if w := h.gateway.Writes(); len(w) != 1 || w[0].sessionID != "s1" {
		t.Errorf("writes = %v", w)
	}
}

func TestReaper_FlushFailureDoesNotAbortSweep(t *testing.T) {
	h := newHarness(t, texts())
	h.start(t, "a")
	h.start(t, "b")
	h.gateway.setWriteErr(errors.New("down"))
	h.clock.Advance(31 * time.Minute)

	if n := NewReaper(h.coord, nil).Sweep(context.Background()); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}
	if h.registry.Len() != 0 {
		t.Error("entries should be evicted despite flush failure")
	}
}

func TestReaper_StartStop(t *testing.T) {
	h := newHarness(t, texts())
	reaper := NewReaper(h.coord, nil)
	ctx := context.Background()

	if got := reaper.Health(ctx).Status; got != "unhealthy" {
		t.Errorf("health before start = %s", got)
	}
	if err := reaper.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := reaper.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}
	if got := reaper.Health(ctx).Status; got != "healthy" {
		t.Errorf("health = %s", got)
	}
	if err := reaper.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := reaper.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestCoordinator_ConcurrentConnections(t *testing.T) {
	backend := &scriptedBackend{}
	for range 40 {
		backend.results = append(backend.results, result{text: "w"})
	}
	h := newHarness(t, backend)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		h.start(t, id)
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for range 10 {
				_ = h.coord.Chunk(context.Background(), id, audio, false)
			}
			_ = h.coord.Stop(context.Background(), id)
		}(id)
	}
	wg.Wait()

	if h.registry.Len() != 0 {
		t.Errorf("registry len = %d", h.registry.Len())
	}
	for _, w := range h.gateway.Writes() {
		if w.text != "w w w w w w w w w w" {
			t.Errorf("final write = %q", w.text)
		}
	}
}

func TestReaper_WaitsForInFlightChunk(t *testing.T) {
	backend := texts("late")
	backend.entered = make(chan struct{})
	backend.release = make(chan struct{})
	h := newHarness(t, backend)
	h.start(t, "c1")
	ctx := context.Background()

	chunkErr := make(chan error, 1)
	go func() { chunkErr <- h.coord.Chunk(ctx, "c1", audio, false) }()
	<-backend.entered
	h.clock.Advance(31 * time.Minute)

	swept := make(chan int, 1)
	go func() { swept <- NewReaper(h.coord, nil).Sweep(ctx) }()
	select {
	case n := <-swept:
		t.Fatalf("Sweep() = %d returned while a chunk held the connection", n)
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.release)
	if err := <-chunkErr; err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if n := <-swept; n != 0 {
		t.Errorf("Sweep() = %d, want 0 after fresh activity", n)
	}
	e, ok := h.registry.Get("c1")
	if !ok || e.Transcript != "late" {
		t.Errorf("entry = %+v, ok=%v", e, ok)
	}
	if w := h.gateway.Writes(); len(w) != 1 || w[0] != (write{sessionID: "s1", text: "late"}) {
		t.Errorf("writes = %v", w)
	}
}

func TestCoordinator_SameConnectionChunkAndStop(t *testing.T) {
	backend := &scriptedBackend{}
	for range 20 {
		backend.results = append(backend.results, result{text: "w"})
	}
	h := newHarness(t, backend)
	h.start(t, "c1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.coord.Chunk(ctx, "c1", audio, false)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = h.coord.Stop(ctx, "c1")
	}()
	wg.Wait()

	if h.registry.Len() != 0 {
		t.Fatalf("registry len = %d", h.registry.Len())
	}
	stopped := h.emitter.Events(EventTranscriptionStopped)
	if len(stopped) != 1 {
		t.Fatalf("stopped events = %d", len(stopped))
	}
	final := stopped[0].payload.(Stopped).FinalTranscript
	chunks := len(h.emitter.Events(EventTranscriptChunk))
	if want := strings.TrimSpace(strings.Repeat("w ", chunks)); final != want {
		t.Errorf("final transcript = %q, want %d words", final, chunks)
	}
	if w := h.gateway.Writes(); len(w) == 0 || w[len(w)-1].text != final {
		t.Errorf("last write = %v, want %q", w, final)
	}
	idle := len(h.emitter.ErrorCodes())
	if chunks+idle != 20 {
		t.Errorf("chunks = %d, idle rejections = %d, want 20 in total", chunks, idle)
	}
}

func TestCoordinator_ReleasesConnectionLocks(t *testing.T) {
	h := newHarness(t, texts("a"))
	ctx := context.Background()

	h.start(t, "c1")
	_ = h.coord.Chunk(ctx, "c1", audio, false)
	h.coord.Disconnect(ctx, "c1")
	h.coord.EvictIfIdle(ctx, "c1", 0)
	_ = h.coord.Stop(ctx, "gone")

	h.coord.mu.Lock()
	n := len(h.coord.locks)
	h.coord.mu.Unlock()
	if n != 0 {
		t.Errorf("connection locks = %d, want 0", n)
	}
}
