package video

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func uniformFrame(seq uint64, fill byte, size int) Frame {
	data := make([]byte, size)
	for i := range data {
		data[i] = fill
	}
	return Frame{Seq: seq, CapturedAt: time.Now(), JPEG: data}
}

func TestReadBeforeAnyWrite(t *testing.T) {
	b := NewBuffer()
	if _, ok := b.Read(); ok {
		t.Fatalf("expected no frame before first write")
	}
}

func TestWriteThenRead(t *testing.T) {
	b := NewBuffer()
	f1 := uniformFrame(1, 0xAA, 256)
	b.Write(f1)
	got, ok := b.Read()
	if !ok {
		t.Fatalf("expected a frame")
	}
	if got.Seq != 1 || !bytes.Equal(got.JPEG, f1.JPEG) {
		t.Fatalf("read frame differs from written frame")
	}
}

func TestReadReturnsIndependentCopy(t *testing.T) {
	b := NewBuffer()
	b.Write(uniformFrame(1, 0xAA, 64))
	got, _ := b.Read()
	got.JPEG[0] = 0x00
	again, _ := b.Read()
	if again.JPEG[0] != 0xAA {
		t.Fatalf("reader mutation leaked into the buffer")
	}
}

func TestOverwriteKeepsOnlyLatest(t *testing.T) {
	b := NewBuffer()
	b.Write(uniformFrame(1, 0x01, 64))
	b.Write(uniformFrame(2, 0x02, 64))
	got, _ := b.Read()
	if got.Seq != 2 || got.JPEG[0] != 0x02 {
		t.Fatalf("expected latest frame, got seq %d", got.Seq)
	}
}

// Every written frame is filled with a single byte value, so a torn
// read would show up as a mixture inside one frame.
func TestConcurrentWritesNeverTear(t *testing.T) {
	b := NewBuffer()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var seq uint64
		for {
			select {
			case <-stop:
				return
			default:
			}
			seq++
			b.Write(uniformFrame(seq, byte(seq%251), 512))
		}
	}()

	for i := 0; i < 5000; i++ {
		frame, ok := b.Read()
		if !ok {
			continue
		}
		first := frame.JPEG[0]
		for _, v := range frame.JPEG {
			if v != first {
				t.Fatalf("torn frame observed at seq %d", frame.Seq)
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestClearReturnsToEmpty(t *testing.T) {
	b := NewBuffer()
	b.Write(uniformFrame(1, 0xAA, 16))
	b.Clear()
	if _, ok := b.Read(); ok {
		t.Fatalf("expected empty buffer after clear")
	}
}
