// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package texcache

import (
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver/null"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/internal/ctxt"
)

// solidDecoder fabricates a width x height image regardless
// of input and counts invocations.
func solidDecoder(width, height int, calls *atomic.Int32) DecodeFunc {
	return func(data []byte) (image.Image, error) {
		calls.Add(1)
		return image.NewRGBA(image.Rect(0, 0, width, height)), nil
	}
}

func newCB(t *testing.T) driver.CmdBuffer {
	t.Helper()
	cb, err := ctxt.GPU().NewCmdBuffer()
	if err != nil {
		t.Fatalf("GPU.NewCmdBuffer failed:\n%v", err)
	}
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%v", err)
	}
	return cb
}

// pumpUntil pumps frames until every handle leaves the
// Loading/Unloaded states or the deadline passes.
func pumpUntil(t *testing.T, c *Cache, cb driver.CmdBuffer, frame *uint64, hs ...Handle) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		settled := true
		for _, h := range hs {
			c.MarkUsed(h, *frame)
			if s := c.State(h); s == Unloaded || s == Loading {
				settled = false
			}
		}
		if settled {
			return
		}
		c.PumpLoads(cb, *frame)
		*frame++
		time.Sleep(time.Millisecond)
	}
	t.Fatal("textures did not settle in time")
}

func newHeap(t *testing.T) *null.DescHeap {
	t.Helper()
	dh, err := ctxt.GPU().NewDescHeap([]driver.Descriptor{
		{Type: driver.DTexture, Stages: driver.SFragment, Nr: 0, Len: 1},
	})
	if err != nil {
		t.Fatalf("GPU.NewDescHeap failed:\n%v", err)
	}
	if err := dh.New(1); err != nil {
		t.Fatalf("DescHeap.New failed:\n%v", err)
	}
	return dh.(*null.DescHeap)
}

func newFallback(t *testing.T) (driver.Image, driver.ImageView) {
	t.Helper()
	img, err := ctxt.GPU().NewImage(driver.RGBA8un, driver.Dim3D{Width: 1, Height: 1}, 1, 1, 1, driver.UShaderSample)
	if err != nil {
		t.Fatalf("GPU.NewImage failed:\n%v", err)
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		t.Fatalf("Image.NewView failed:\n%v", err)
	}
	return img, view
}

func TestDedup(t *testing.T) {
	var calls atomic.Int32
	conf := DefaultConfig()
	conf.Decode = solidDecoder(4, 4, &calls)
	c := New(conf)
	defer c.Shutdown()

	h1 := c.Request(&Key{Bytes: []byte("same"), SRGB: true}, nil)
	h2 := c.Request(&Key{Bytes: []byte("same"), SRGB: true}, nil)
	if h1 != h2 {
		t.Fatalf("handles:\nhave %d, %d\nwant equal", h1, h2)
	}
	if n := c.Len(); n != 1 {
		t.Fatalf("Len:\nhave %d\nwant 1", n)
	}

	cb := newCB(t)
	frame := uint64(1)
	pumpUntil(t, c, cb, &frame, h1)
	if n := calls.Load(); n != 1 {
		t.Fatalf("decode calls:\nhave %d\nwant 1", n)
	}
	if s := c.State(h1); s != Resident {
		t.Fatalf("State:\nhave %v\nwant %v", s, Resident)
	}
}

func TestSRGBVariantsDiffer(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Shutdown()
	h1 := c.Request(&Key{Bytes: []byte("img"), SRGB: true}, nil)
	h2 := c.Request(&Key{Bytes: []byte("img"), SRGB: false}, nil)
	if h1 == h2 {
		t.Fatal("sRGB and linear variants interned as one entry")
	}
}

func TestBudgetBound(t *testing.T) {
	var calls atomic.Int32
	conf := DefaultConfig()
	// 500x500 RGBA8, no mips: exactly 1_000_000 bytes.
	conf.Decode = solidDecoder(500, 500, &calls)
	conf.GPUBudgetBytes = 2_000_000
	c := New(conf)
	defer c.Shutdown()

	var hs []Handle
	for _, s := range []string{"a", "b", "c"} {
		hs = append(hs, c.Request(&Key{Bytes: []byte(s)}, nil))
	}
	cb := newCB(t)
	frame := uint64(1)
	pumpUntil(t, c, cb, &frame, hs...)
	if c.ResidentBytes() > conf.GPUBudgetBytes {
		t.Fatalf("ResidentBytes:\nhave %d\nwant <= %d", c.ResidentBytes(), conf.GPUBudgetBytes)
	}
}

func TestLRUEviction(t *testing.T) {
	var calls atomic.Int32
	conf := DefaultConfig()
	// 5x5 RG8: exactly 50 bytes.
	conf.Decode = solidDecoder(5, 5, &calls)
	c := New(conf)
	defer c.Shutdown()

	a := c.Request(&Key{Bytes: []byte("a"), Channels: ChRG}, nil)
	b := c.Request(&Key{Bytes: []byte("b"), Channels: ChRG}, nil)
	d := c.Request(&Key{Bytes: []byte("c"), Channels: ChRG}, nil)
	cb := newCB(t)
	frame := uint64(1)
	pumpUntil(t, c, cb, &frame, a, b, d)

	// Used in order a, b, c on distinct past frames.
	c.MarkUsed(a, frame)
	c.MarkUsed(b, frame+1)
	c.MarkUsed(d, frame+2)
	now := frame + 10
	c.EvictToBudget(100, now)

	if s := c.State(a); s != Evicted {
		t.Fatalf("State(a):\nhave %v\nwant %v", s, Evicted)
	}
	if s := c.State(b); s != Resident {
		t.Fatalf("State(b):\nhave %v\nwant %v", s, Resident)
	}
	if s := c.State(d); s != Resident {
		t.Fatalf("State(c):\nhave %v\nwant %v", s, Resident)
	}
	if c.ResidentBytes() != 100 {
		t.Fatalf("ResidentBytes:\nhave %d\nwant 100", c.ResidentBytes())
	}
}

func TestEvictionSkipsThisFrame(t *testing.T) {
	var calls atomic.Int32
	conf := DefaultConfig()
	conf.Decode = solidDecoder(500, 500, &calls)
	c := New(conf)
	defer c.Shutdown()

	a := c.Request(&Key{Bytes: []byte("a")}, nil)
	b := c.Request(&Key{Bytes: []byte("b")}, nil)
	d := c.Request(&Key{Bytes: []byte("c")}, nil)
	cb := newCB(t)
	frame := uint64(1)
	pumpUntil(t, c, cb, &frame, a, b, d)

	dh := newHeap(t)
	fbImg, fbView := newFallback(t)
	defer fbImg.Destroy()
	defer fbView.Destroy()
	set := SetID{Heap: dh, Cpy: 0}
	c.WatchBinding(d, set, 0, nil, fbView)
	if v := dh.Image(0, 0, 0); v != c.View(d) {
		t.Fatalf("watched site:\nhave %v\nwant resident view", v)
	}

	now := frame + 10
	c.MarkUsed(a, now)
	c.MarkUsed(b, now)
	c.EvictToBudget(2_000_000, now)

	if s := c.State(d); s != Evicted {
		t.Fatalf("State(c):\nhave %v\nwant %v", s, Evicted)
	}
	if s := c.State(a); s != Resident {
		t.Fatalf("State(a):\nhave %v\nwant %v", s, Resident)
	}
	// The watched site fell back.
	if v := dh.Image(0, 0, 0); v != fbView {
		t.Fatalf("watched site after eviction:\nhave %v\nwant fallback", v)
	}
}

func TestCooldown(t *testing.T) {
	var calls atomic.Int32
	conf := DefaultConfig()
	conf.ReloadCooldownFrames = 100
	conf.Decode = func(data []byte) (image.Image, error) {
		calls.Add(1)
		return nil, errors.New("synthetic decode failure")
	}
	c := New(conf)
	defer c.Shutdown()

	h := c.Request(&Key{Bytes: []byte("bad")}, nil)
	cb := newCB(t)
	frame := uint64(1)
	pumpUntil(t, c, cb, &frame, h)
	if s := c.State(h); s != Evicted {
		t.Fatalf("State:\nhave %v\nwant %v", s, Evicted)
	}
	failedAt := calls.Load()

	// Pumping well before the cooldown expires must not
	// re-enqueue the entry.
	for i := 0; i < 10; i++ {
		c.MarkUsed(h, frame)
		c.PumpLoads(cb, frame)
		frame++
		time.Sleep(time.Millisecond)
	}
	if n := calls.Load(); n != failedAt {
		t.Fatalf("decode calls during cooldown:\nhave %d\nwant %d", n, failedAt)
	}
}

func TestUnwatchSet(t *testing.T) {
	var calls atomic.Int32
	conf := DefaultConfig()
	conf.Decode = solidDecoder(4, 4, &calls)
	c := New(conf)
	defer c.Shutdown()

	h := c.Request(&Key{Bytes: []byte("x")}, nil)
	dh := newHeap(t)
	fbImg, fbView := newFallback(t)
	defer fbImg.Destroy()
	defer fbView.Destroy()
	set := SetID{Heap: dh, Cpy: 0}
	c.WatchBinding(h, set, 0, nil, fbView)
	c.UnwatchSet(set)

	cb := newCB(t)
	frame := uint64(1)
	pumpUntil(t, c, cb, &frame, h)
	// Upload proceeded, but the retired set kept its old
	// contents.
	if s := c.State(h); s != Resident {
		t.Fatalf("State:\nhave %v\nwant %v", s, Resident)
	}
	if v := dh.Image(0, 0, 0); v != fbView {
		t.Fatalf("retired site:\nhave %v\nwant fallback", v)
	}
}

func TestMarkSetUsed(t *testing.T) {
	var calls atomic.Int32
	conf := DefaultConfig()
	conf.Decode = solidDecoder(4, 4, &calls)
	c := New(conf)
	defer c.Shutdown()

	h := c.Request(&Key{Bytes: []byte("x")}, nil)
	dh := newHeap(t)
	fbImg, fbView := newFallback(t)
	defer fbImg.Destroy()
	defer fbView.Destroy()
	set := SetID{Heap: dh, Cpy: 0}
	c.WatchBinding(h, set, 0, nil, fbView)

	c.MarkSetUsed(set, 42)
	if u := c.entryOf(h).lastUsed; u != 42 {
		t.Fatalf("lastUsed:\nhave %d\nwant 42", u)
	}
}

func TestMipCostFactor(t *testing.T) {
	// A deep chain converges on 4/3 of the base size.
	base := vramCost(1024, 1024, 1, driver.RGBA8un)
	full := vramCost(1024, 1024, 11, driver.RGBA8un)
	lo := int64(float64(base) * 4 / 3 * 0.999)
	hi := int64(float64(base) * 4 / 3)
	if full < lo || full > hi {
		t.Fatalf("vramCost:\nhave %d\nwant within [%d, %d]", full, lo, hi)
	}
}
