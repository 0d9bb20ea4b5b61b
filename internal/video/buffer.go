package video

import (
	"sync/atomic"
	"time"
)

// Frame is one encoded video frame. Immutable once written: the
// producer hands ownership of JPEG to the buffer and must not touch it
// afterwards.
type Frame struct {
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	JPEG       []byte    `json:"-"`
}

// Buffer is a single-slot, overwrite-on-write frame exchange. One
// producer, any number of consumers. Writes never block and never queue;
// a slow consumer simply misses frames. Readers get their own copy of
// the pixel data and can never observe a partially written frame, since
// the swap is a single atomic pointer store.
type Buffer struct {
	cur atomic.Pointer[Frame]
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write replaces the current frame unconditionally.
func (b *Buffer) Write(f Frame) {
	b.cur.Store(&f)
}

// Read returns a copy of the latest frame, or ok=false when nothing has
// been produced yet. Never blocks.
func (b *Buffer) Read() (Frame, bool) {
	f := b.cur.Load()
	if f == nil {
		return Frame{}, false
	}
	out := *f
	out.JPEG = make([]byte, len(f.JPEG))
	copy(out.JPEG, f.JPEG)
	return out, true
}

// Clear drops the current frame, returning the buffer to its initial
// "no frame yet" state.
func (b *Buffer) Clear() {
	b.cur.Store(nil)
}
