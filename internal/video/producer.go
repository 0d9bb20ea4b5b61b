package video

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trafficmon/internal/config"
	"trafficmon/internal/metrics"
	"trafficmon/internal/model"
)

// ErrAlreadyRunning is returned by Start when the producer is running.
var ErrAlreadyRunning = errors.New("frame producer already running")

// StateFn supplies the live counter snapshot rendered onto each frame.
type StateFn func() model.Snapshot

// Producer derives annotated frames at the source frame rate,
// independent of the monitor cadence, and writes them into the buffer.
// It stands in for the detector output stream; the synthetic clip loops
// back to its first frame at the end rather than terminating.
//
// Lifecycle is a two-state machine, Idle -> Running -> Idle. Stop joins
// the background goroutine; after it returns no further writes occur.
type Producer struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	buf     *Buffer
	cfg     config.VideoConfig
	state   StateFn
	metrics *metrics.Metrics
	logger  *slog.Logger
	seq     uint64
}

func NewProducer(buf *Buffer, cfg config.VideoConfig, state StateFn, m *metrics.Metrics, logger *slog.Logger) *Producer {
	return &Producer{buf: buf, cfg: cfg, state: state, metrics: m, logger: logger}
}

// Start moves the producer to Running. Starting twice is an error.
func (p *Producer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	go p.run(ctx, p.done)
	if p.logger != nil {
		p.logger.Info("frame producer started", "fps", p.cfg.FPS)
	}
	return nil
}

// Stop cancels the producer and waits for its goroutine to exit.
// Safe to call when idle.
func (p *Producer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	// Cancel before releasing the lock so a racing Start never sees
	// running=false while the old goroutine is still unsignalled.
	p.cancel()
	done := p.done
	p.running = false
	p.mu.Unlock()

	<-done
	if p.logger != nil {
		p.logger.Info("frame producer stopped")
	}
}

// Running reports the current lifecycle state.
func (p *Producer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Producer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	fps := p.cfg.FPS
	if fps <= 0 {
		fps = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var snap model.Snapshot
		if p.state != nil {
			snap = p.state()
		}
		jpeg, err := renderFrame(p.cfg.Width, p.cfg.Height, p.seq, snap)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("frame render failed", "err", err)
			}
			continue
		}
		p.buf.Write(Frame{Seq: p.seq, CapturedAt: time.Now().UTC(), JPEG: jpeg})
		p.seq++
		if p.metrics != nil {
			p.metrics.FramesProduced.Add(1)
		}
	}
}
