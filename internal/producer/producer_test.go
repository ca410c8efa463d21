package producer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

type call struct {
	payload string
	seq     uint64
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	fail  func(seq uint64) bool
}

func (r *recorder) Broadcast(_ context.Context, payload []byte, seq uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{string(payload), seq})
	if r.fail != nil && r.fail(seq) {
		return errors.New("boom")
	}
	return nil
}

func TestRunLinesSkipsEmpty(t *testing.T) {
	rec := &recorder{}
	p := New(rec, nil)

	in := "first\n\nsecond\r\n\n\nthird"
	if err := p.Run(context.Background(), strings.NewReader(in), FramingLines); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []call{{"first", 1}, {"second", 2}, {"third", 3}}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Fatalf("call %d = %v, want %v", i, rec.calls[i], want[i])
		}
	}
}

// chunkedReader returns one part per Read call.
type chunkedReader struct {
	parts []string
}

func (r *chunkedReader) Read(b []byte) (int, error) {
	if len(r.parts) == 0 {
		return 0, io.EOF
	}
	n := copy(b, r.parts[0])
	r.parts = r.parts[1:]
	return n, nil
}

func TestRunChunksOneMessagePerRead(t *testing.T) {
	rec := &recorder{}
	p := New(rec, nil)

	r := &chunkedReader{parts: []string{"abc", "de\n", "f"}}
	if err := p.Run(context.Background(), r, FramingChunk); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.calls) != 3 || rec.calls[1].payload != "de\n" || rec.calls[2].seq != 3 {
		t.Fatalf("calls = %v", rec.calls)
	}
}

func TestFailedBroadcastDoesNotStopStream(t *testing.T) {
	rec := &recorder{fail: func(seq uint64) bool { return seq == 2 }}
	p := New(rec, nil)

	if err := p.Run(context.Background(), strings.NewReader("a\nb\nc\n"), FramingLines); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(rec.calls))
	}
	if p.Failed() != 1 || p.Seq() != 3 {
		t.Fatalf("Failed/Seq = %d/%d, want 1/3", p.Failed(), p.Seq())
	}
}

func TestPublishSeqIsMonotonicAcrossGoroutines(t *testing.T) {
	rec := &recorder{}
	p := New(rec, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				p.Publish(context.Background(), []byte("x"))
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, 400)
	for _, c := range rec.calls {
		if seen[c.seq] {
			t.Fatalf("seq %d used twice", c.seq)
		}
		seen[c.seq] = true
	}
	if len(seen) != 400 || p.Seq() != 400 {
		t.Fatalf("distinct seqs = %d, last = %d; want 400/400", len(seen), p.Seq())
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	rec := &recorder{}
	p := New(rec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx, strings.NewReader("a\nb\n"), FramingLines)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("published %d messages after cancel", len(rec.calls))
	}
}

func TestParseFraming(t *testing.T) {
	for _, s := range []string{"chunk", "lines"} {
		if _, err := ParseFraming(s); err != nil {
			t.Fatalf("ParseFraming(%q): %v", s, err)
		}
	}
	if _, err := ParseFraming("words"); err == nil {
		t.Fatalf("ParseFraming(words) succeeded")
	}
}
