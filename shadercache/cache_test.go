package shadercache

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gapid-shaderlayer/gpuav/internal/id"
)

type countingSerializer struct {
	serialized int32
}

func (s *countingSerializer) Serialize(w io.Writer, key Key, e *Entry) error {
	atomic.AddInt32(&s.serialized, 1)
	return nil
}

func (s *countingSerializer) Deserialize(r io.Reader) (Key, *Entry, error) {
	return Key{}, nil, io.EOF
}

func TestInsertIsIdempotentAndCountsPendingOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(ctx, Options{Serializer: &countingSerializer{}, MissThreshold: 1000})

	key := Key{FeatureVersionUID: id.Of([]byte("v1")), SourceCreateInfo: []byte("info"), SourceBlob: []byte("blob")}
	entry := &Entry{InstrumentedCreateInfo: []byte("rewritten")}

	c.Insert(key, entry)
	c.Insert(key, entry) // second insert of the same key is a no-op

	if got, ok := c.Query(key); !ok || string(got.InstrumentedCreateInfo) != "rewritten" {
		t.Fatalf("expected cache hit with rewritten blob, got %+v ok=%v", got, ok)
	}
	if c.PendingEntries() != 1 {
		t.Fatalf("expected pending_entries == 1 after two inserts of the same key, got %d", c.PendingEntries())
	}
}

func TestAutoSerializeDrainsPendingAndGrowsThreshold(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ser := &countingSerializer{}
	c := New(ctx, Options{Serializer: ser, MissThreshold: 2, GrowthFactor: 2})

	for i := 0; i < 2; i++ {
		key := Key{FeatureVersionUID: id.Of([]byte("v1")), SourceCreateInfo: []byte{byte(i)}, SourceBlob: []byte("b")}
		c.Insert(key, &Entry{InstrumentedCreateInfo: []byte("x")})
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.PendingEntries() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.PendingEntries() != 0 {
		t.Fatalf("expected auto-serialize to drain pending entries, got %d", c.PendingEntries())
	}
	if atomic.LoadInt32(&ser.serialized) != 2 {
		t.Fatalf("expected 2 entries serialized, got %d", ser.serialized)
	}
	if c.missThreshold != 4 {
		t.Fatalf("expected threshold to grow from 2 to 4, got %d", c.missThreshold)
	}
}
