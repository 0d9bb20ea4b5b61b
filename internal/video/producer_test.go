package video

import (
	"sync"
	"testing"
	"time"

	"trafficmon/internal/config"
)

func testVideoConfig() config.VideoConfig {
	return config.VideoConfig{Enabled: true, FPS: 50, Width: 160, Height: 120}
}

func TestStartWhileRunningFails(t *testing.T) {
	p := NewProducer(NewBuffer(), testVideoConfig(), nil, nil, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer p.Stop()
	if err := p.Start(); err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStopJoinsAndHaltsWrites(t *testing.T) {
	buf := NewBuffer()
	p := NewProducer(buf, testVideoConfig(), nil, nil, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := buf.Read(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no frame produced before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	p.Stop()
	if p.Running() {
		t.Fatalf("producer still running after stop")
	}
	frame, _ := buf.Read()
	time.Sleep(100 * time.Millisecond)
	after, _ := buf.Read()
	if after.Seq != frame.Seq {
		t.Fatalf("writes continued after stop returned: %d -> %d", frame.Seq, after.Seq)
	}

	// Idle -> stop is a no-op, restart is allowed.
	p.Stop()
	if err := p.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	p.Stop()
}

func TestConcurrentStartStopCycles(t *testing.T) {
	p := NewProducer(NewBuffer(), testVideoConfig(), nil, nil, nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = p.Start()
				p.Stop()
			}
		}()
	}
	wg.Wait()
	p.Stop()
	if p.Running() {
		t.Fatalf("producer running after every caller stopped")
	}
}

func TestZeroFPSFallsBackToDefaultRate(t *testing.T) {
	buf := NewBuffer()
	cfg := testVideoConfig()
	cfg.FPS = 0
	p := NewProducer(buf, cfg, nil, nil, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := buf.Read(); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no frame produced with zero fps config")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestPlaceholderDistinctFromFrames(t *testing.T) {
	card := Placeholder(160, 120)
	if len(card) == 0 {
		t.Fatalf("placeholder must encode")
	}
}
