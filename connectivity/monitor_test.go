package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (f *fakeProber) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeProber) set(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type transition struct {
	online bool
	err    error
}

type mockEmitter struct {
	ch chan transition
}

func (m *mockEmitter) EmitConnectivityChanged(online bool, err error) {
	m.ch <- transition{online, err}
}

func TestTransitionsOnlyOnChange(t *testing.T) {
	p := &fakeProber{err: errors.New("dial tcp: no route to host")}
	em := &mockEmitter{ch: make(chan transition, 10)}
	m := NewMonitor(p, em, time.Hour, time.Second, nil)

	if m.Probe() {
		t.Fatal("Probe() = true while unreachable")
	}
	m.Probe()
	p.set(nil)
	m.Probe()
	m.Probe()
	p.set(errors.New("timeout"))
	m.Probe()

	close(em.ch)
	var got []bool
	for tr := range em.ch {
		got = append(got, tr.online)
	}
	want := []bool{false, true, false}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
	if m.Online() || m.LastError() == nil {
		t.Errorf("Online() = %v, LastError() = %v", m.Online(), m.LastError())
	}
}

func TestLoopProbesUntilStopped(t *testing.T) {
	p := &fakeProber{}
	em := &mockEmitter{ch: make(chan transition, 10)}
	m := NewMonitor(p, em, 10*time.Millisecond, time.Second, nil)
	m.Start()

	select {
	case tr := <-em.ch:
		if !tr.online {
			t.Errorf("first transition online = false")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no initial probe")
	}

	p.set(errors.New("down"))
	select {
	case tr := <-em.ch:
		if tr.online || tr.err == nil {
			t.Errorf("transition = %+v, want offline with error", tr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("offline transition not observed")
	}

	m.Stop()
	m.Stop()
}
