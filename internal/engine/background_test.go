package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"go.uber.org/zap"
)

type fakeBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.messages == nil {
		b.messages = map[string][][]byte{}
	}
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func TestPublisherDeliversEvents(t *testing.T) {
	bus := &fakeBus{}
	p := NewPublisher(bus, "escrow:events", NewReliabilityWrapper(fastConfig("pub"), nil), nil, zap.NewNop(), 16)
	p.Start()

	for _, op := range []domain.Operation{domain.OpCreateDraft, domain.OpFund} {
		p.Emit(domain.Event{ID: string(op), Operation: op, Outcome: domain.OutcomeAllowed})
	}
	p.Stop()
	p.Emit(domain.Event{ID: "late"}) // после Stop молча игнорируется

	msgs := bus.messages["escrow:events"]
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	var ev domain.Event
	if err := json.Unmarshal(msgs[1], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Operation != domain.OpFund {
		t.Errorf("event = %+v", ev)
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	p := NewPublisher(&fakeBus{}, "c", NewReliabilityWrapper(fastConfig("pub"), nil), m, zap.NewNop(), 1)
	// воркер не запущен: второй Emit не помещается
	p.Emit(domain.Event{ID: "1"})
	p.Emit(domain.Event{ID: "2"})

	if got := testutil.ToFloat64(m.DroppedTotal.WithLabelValues("events")); got != 1 {
		t.Fatalf("dropped = %v", got)
	}
}

type fakeStateRepo struct {
	mu    sync.Mutex
	saved []domain.State
	load  domain.State
	err   error
}

func (r *fakeStateRepo) SaveState(_ context.Context, st domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, st)
	return nil
}

func (r *fakeStateRepo) LoadState(context.Context) (domain.State, error) {
	return r.load, r.err
}

func TestStateSyncerLatestWins(t *testing.T) {
	repo := &fakeStateRepo{}
	s := NewStateSyncer(repo, NewReliabilityWrapper(fastConfig("kv"), nil), zap.NewNop())

	// до Start накапливается только последний снимок
	s.Save(domain.State{Role: domain.RoleCreator})
	s.Save(domain.State{Role: domain.RoleArbitrator})
	s.Start()
	s.Stop()

	if len(repo.saved) != 1 || repo.saved[0].Role != domain.RoleArbitrator {
		t.Fatalf("saved = %+v", repo.saved)
	}

	s.Save(domain.State{Role: domain.RoleCounterparty})
	if len(repo.saved) != 1 {
		t.Fatal("save after Stop must be ignored")
	}
}

func TestStateSyncerLoad(t *testing.T) {
	repo := &fakeStateRepo{load: domain.State{Role: domain.RoleCounterparty}}
	s := NewStateSyncer(repo, NewReliabilityWrapper(fastConfig("kv"), nil), zap.NewNop())
	st, err := s.Load(context.Background())
	if err != nil || st.Role != domain.RoleCounterparty {
		t.Fatalf("Load = %+v, %v", st, err)
	}

	repo.err = errors.New("conn refused")
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestControllerPersistsThroughSyncer(t *testing.T) {
	repo := &fakeStateRepo{}
	s := NewStateSyncer(repo, NewReliabilityWrapper(fastConfig("kv"), nil), zap.NewNop())
	s.Start()

	f := newFixture(t)
	f.ctrl.state = s
	f.create(t, "1")
	s.Stop()

	if len(repo.saved) == 0 {
		t.Fatal("nothing persisted")
	}
	last := repo.saved[len(repo.saved)-1]
	if len(last.Vaults) != 1 || len(last.Activity) != 1 {
		t.Fatalf("last snapshot = %+v", last)
	}
}
