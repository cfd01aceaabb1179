package connectivity

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"nirmaan/internal/log"
)

func TestTrackerNotifiesOnTransitionsOnly(t *testing.T) {
	tr := NewTracker(true)
	var mu sync.Mutex
	var got []bool
	cancel := tr.Subscribe(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	tr.Set(true)
	tr.Set(false)
	tr.Set(false)
	tr.Set(true)
	cancel()
	cancel()
	tr.Set(false)

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("transitions = %v, want [false true]", got)
	}
	if tr.Online() {
		t.Error("tracker should be offline after the last Set")
	}
}

func TestDialProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	ctx := context.Background()
	if !DialProbe(addr, time.Second)(ctx) {
		t.Error("probe of a listening port failed")
	}
	ln.Close()
	if DialProbe(addr, 200*time.Millisecond)(ctx) {
		t.Error("probe of a closed port succeeded")
	}
}

func TestProberCheck(t *testing.T) {
	tr := NewTracker(true)
	up := false
	p := NewProber(tr, func(context.Context) bool { return up }, time.Hour, log.Discard())

	if p.Check(context.Background()) || tr.Online() {
		t.Error("expected offline")
	}
	up = true
	if !p.Check(context.Background()) || !tr.Online() {
		t.Error("expected online")
	}
}

func TestProberWithoutProbeStaysOnline(t *testing.T) {
	tr := NewTracker(false)
	p := NewProber(tr, nil, time.Hour, log.Discard())

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run without a probe should return after one check")
	}
	if !tr.Online() {
		t.Error("tracker should be online when there is nothing to probe")
	}
}
