// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package texcache

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/internal/ctxt"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/rgraph"
)

// State is the lifecycle state of a cache entry.
type State int

// Entry states.
const (
	Unloaded State = iota
	Loading
	Resident
	Evicted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Unloaded:
		return "Unloaded"
	case Loading:
		return "Loading"
	case Resident:
		return "Resident"
	case Evicted:
		return "Evicted"
	}
	return "!texcache.State"
}

// Handle identifies a cache entry.
// The zero value is invalid. Handles are stable for the
// lifetime of the cache.
type Handle int

// SetID identifies a descriptor set: one copy of a heap.
type SetID struct {
	Heap driver.DescHeap
	Cpy  int
}

// patch is one descriptor site kept in sync with an entry's
// resident view.
type patch struct {
	set      SetID
	nr       int
	splr     driver.Sampler
	fallback driver.ImageView
}

// entry is one cached texture.
// Entries are mutated only on the record thread.
type entry struct {
	key      Key
	state    State
	img      driver.Image
	view     driver.ImageView
	width    int
	height   int
	levels   int
	size     int64
	lastUsed uint64
	// fresh marks an entry that was requested but never
	// scheduled; the first sighting passes the visibility
	// filter regardless of frame distance.
	fresh bool
	// Eviction bookkeeping.
	lastEvicted uint64
	nextAttempt uint64
	patches     []patch
	splr        driver.Sampler
}

// Config holds the cache tunables.
type Config struct {
	// GPUBudgetBytes bounds the total VRAM footprint of
	// resident entries. Zero means unbounded.
	GPUBudgetBytes int64
	// CPUSourceBudget bounds the bytes retained from
	// byte-sourced keys of resident entries.
	// Zero means unbounded.
	CPUSourceBudget int64
	// MaxLoadsPerPump bounds decode scheduling per frame.
	MaxLoadsPerPump int
	// MaxBytesPerPump bounds uploads per frame.
	// The first upload of a pump is always admitted, even
	// when it alone exceeds the bound, so a texture larger
	// than the budget cannot stall forever.
	// Zero means unbounded.
	MaxBytesPerPump int64
	// MaxUploadDimension halves decoded images until both
	// sides fit. Zero disables.
	MaxUploadDimension int
	// ReloadCooldownFrames delays the next load attempt of
	// a failed entry.
	ReloadCooldownFrames uint64
	// KeepSourceBytes retains byte sources after upload.
	KeepSourceBytes bool
	// Workers sets the decode pool size, bounded to 4.
	Workers int
	// Decode overrides the default image decoder.
	Decode DecodeFunc
}

// DefaultConfig returns the default cache tunables.
func DefaultConfig() Config {
	return Config{
		GPUBudgetBytes:       512 << 20,
		CPUSourceBudget:      64 << 20,
		MaxLoadsPerPump:      8,
		MaxBytesPerPump:      32 << 20,
		MaxUploadDimension:   4096,
		ReloadCooldownFrames: 120,
		Workers:              maxDecodeWorkers,
	}
}

// Cache is the streaming texture cache.
// All methods except the decode pool's internals must be
// called from the record thread.
type Cache struct {
	conf     Config
	entries  []entry
	byHash   map[uint64]Handle
	bySet    map[SetID][]Handle
	pool     *decodePool
	resident int64
	cpuSrc   int64
}

// New creates a cache and starts its decode workers.
func New(conf Config) *Cache {
	return &Cache{
		conf:   conf,
		byHash: make(map[uint64]Handle),
		bySet:  make(map[SetID][]Handle),
		pool:   newDecodePool(conf.Workers),
	}
}

// Shutdown stops the decode workers and destroys resident
// images. Pending decodes are discarded.
func (c *Cache) Shutdown() {
	c.pool.shutdown()
	for i := range c.entries {
		e := &c.entries[i]
		if e.state == Resident {
			ctxt.DeferDestroy(e.view)
			ctxt.DeferDestroy(e.img)
			e.state = Evicted
		}
	}
	c.resident = 0
}

// entryOf returns the entry of h.
// It panics on invalid handles.
func (c *Cache) entryOf(h Handle) *entry {
	if h < 1 || int(h) > len(c.entries) {
		panic(prefix + "invalid Handle")
	}
	return &c.entries[h-1]
}

// Request interns a key and returns its handle.
// Equivalent normalized keys always map to one entry; the
// sampler becomes the entry's default for later patches.
func (c *Cache) Request(k *Key, splr driver.Sampler) Handle {
	fp := k.fingerprint()
	if h, ok := c.byHash[fp]; ok {
		return h
	}
	c.entries = append(c.entries, entry{
		key:   *k,
		splr:  splr,
		fresh: true,
	})
	h := Handle(len(c.entries))
	c.byHash[fp] = h
	c.cpuSrc += int64(len(k.Bytes))
	return h
}

// State returns the current state of h.
func (c *Cache) State(h Handle) State { return c.entryOf(h).state }

// View returns the resident view of h, or nil.
func (c *Cache) View(h Handle) driver.ImageView {
	e := c.entryOf(h)
	if e.state != Resident {
		return nil
	}
	return e.view
}

// ResidentBytes returns the VRAM footprint of all resident
// entries.
func (c *Cache) ResidentBytes() int64 { return c.resident }

// Len returns the number of interned entries.
func (c *Cache) Len() int { return len(c.entries) }

// MarkUsed refreshes h's LRU timestamp.
func (c *Cache) MarkUsed(h Handle, frame uint64) { c.entryOf(h).lastUsed = frame }

// WatchBinding registers a descriptor site to be kept in
// sync with h's resident view.
// Until the entry is resident, and again after eviction, the
// site holds fallback.
func (c *Cache) WatchBinding(h Handle, set SetID, nr int, splr driver.Sampler, fallback driver.ImageView) {
	e := c.entryOf(h)
	if splr == nil {
		splr = e.splr
	}
	e.patches = append(e.patches, patch{set, nr, splr, fallback})
	c.bySet[set] = append(c.bySet[set], h)

	view := fallback
	if e.state == Resident {
		view = e.view
	}
	c.apply(set, nr, view, splr)
}

// UnwatchSet drops every patch targeting a retired set.
func (c *Cache) UnwatchSet(set SetID) {
	for _, h := range c.bySet[set] {
		e := c.entryOf(h)
		kept := e.patches[:0]
		for _, p := range e.patches {
			if p.set != set {
				kept = append(kept, p)
			}
		}
		e.patches = kept
	}
	delete(c.bySet, set)
}

// MarkSetUsed refreshes the LRU timestamp of every handle a
// set references.
func (c *Cache) MarkSetUsed(set SetID, frame uint64) {
	for _, h := range c.bySet[set] {
		c.entryOf(h).lastUsed = frame
	}
}

// apply writes one descriptor site.
// Record thread only.
func (c *Cache) apply(set SetID, nr int, view driver.ImageView, splr driver.Sampler) {
	if view != nil {
		set.Heap.SetImage(set.Cpy, nr, 0, []driver.ImageView{view})
	}
	if splr != nil {
		set.Heap.SetSampler(set.Cpy, nr, 0, []driver.Sampler{splr})
	}
}

// patchAll rewrites every watched site of e to view.
func (c *Cache) patchAll(e *entry, view driver.ImageView) {
	for _, p := range e.patches {
		v := view
		if v == nil {
			v = p.fallback
		}
		c.apply(p.set, p.nr, v, p.splr)
	}
}

// PumpLoads advances the cache by one frame: it uploads
// completed decodes within the per-pump and GPU budgets,
// schedules new decodes for recently seen entries, and
// enforces the CPU source budget.
// Upload commands are recorded into cb.
func (c *Cache) PumpLoads(cb driver.CmdBuffer, frame uint64) {
	c.drainReady(cb, frame)
	c.scheduleDecodes(frame)
	c.evictCPUToBudget()
}

func (c *Cache) drainReady(cb driver.CmdBuffer, frame uint64) {
	ready := c.pool.drain()
	var pumped int64
	for i, d := range ready {
		e := c.entryOf(d.h)
		if d.err != nil {
			ctxt.Log().Warn(prefix+"decode failed", "err", d.err)
			c.fail(e, frame)
			continue
		}
		pf := e.key.format()
		levels := e.key.mipLevels(d.width, d.height)
		cost := vramCost(d.width, d.height, levels, pf)

		if c.conf.MaxBytesPerPump > 0 && pumped > 0 && pumped+cost > c.conf.MaxBytesPerPump {
			// Out of pump budget; revisit next frame.
			c.pool.pushBack(ready[i:])
			break
		}
		if c.conf.GPUBudgetBytes > 0 && c.resident+cost > c.conf.GPUBudgetBytes {
			c.tryMakeSpace(cost, frame)
			if c.resident+cost > c.conf.GPUBudgetBytes {
				ctxt.Log().Warn(prefix+"VRAM budget exhausted", "need", cost)
				c.fail(e, frame)
				continue
			}
		}
		if err := c.upload(cb, e, &d, pf, levels, cost); err != nil {
			ctxt.Log().Warn(prefix+"upload failed", "err", err)
			c.fail(e, frame)
			continue
		}
		pumped += cost
		if !c.conf.KeepSourceBytes && len(e.key.Bytes) > 0 {
			c.cpuSrc -= int64(len(e.key.Bytes))
			e.key.Bytes = nil
		}
		c.patchAll(e, e.view)
	}
}

// fail moves an entry to Evicted with a reload cooldown.
func (c *Cache) fail(e *entry, frame uint64) {
	e.state = Evicted
	e.lastEvicted = frame
	e.nextAttempt = frame + c.conf.ReloadCooldownFrames
}

// upload creates the GPU image and records the staging copy
// plus mip generation into cb.
func (c *Cache) upload(cb driver.CmdBuffer, e *entry, d *decoded, pf driver.PixelFmt, levels int, cost int64) error {
	pix := repack(d.pix, e.key.Channels)
	gpu := ctxt.GPU()
	img, err := gpu.NewImage(pf, driver.Dim3D{Width: d.width, Height: d.height},
		1, levels, 1, driver.UShaderSample|driver.UCopySrc|driver.UCopyDst)
	if err != nil {
		return err
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, levels)
	if err != nil {
		img.Destroy()
		return err
	}
	stg, err := gpu.NewBuffer(int64(len(pix)), true, driver.UCopySrc)
	if err != nil {
		view.Destroy()
		img.Destroy()
		return err
	}
	copy(stg.Bytes(), pix)
	ctxt.DeferDestroy(stg)

	rgraph.TransitionImage(cb, img, driver.LUndefined, driver.LCopyDst, 0, 1, 0, levels)
	cb.CopyBufToImg(&driver.BufImgCopy{
		Buf:    stg,
		Stride: [2]int64{int64(d.width), int64(d.height)},
		Img:    img,
		Layers: 1,
		Size:   driver.Dim3D{Width: d.width, Height: d.height, Depth: 1},
	})
	if levels > 1 {
		rgraph.GenerateMipmaps(cb, img, d.width, d.height, levels)
	} else {
		rgraph.TransitionImage(cb, img, driver.LCopyDst, driver.LShaderRead, 0, 1, 0, 1)
	}

	e.img = img
	e.view = view
	e.width = d.width
	e.height = d.height
	e.levels = levels
	e.size = cost
	e.state = Resident
	c.resident += cost
	return nil
}

// repack narrows RGBA8 pixels to the hinted channel count.
func repack(pix []byte, ch Channels) []byte {
	switch ch {
	case ChR:
		out := make([]byte, len(pix)/4)
		for i := range out {
			out[i] = pix[i*4]
		}
		return out
	case ChRG:
		out := make([]byte, len(pix)/2)
		for i := 0; i < len(out); i += 2 {
			out[i] = pix[i*2]
			out[i+1] = pix[i*2+1]
		}
		return out
	}
	return pix
}

// scheduleDecodes enqueues loads for entries seen recently.
func (c *Cache) scheduleDecodes(frame uint64) {
	var n int
	for i := range c.entries {
		if n >= c.conf.MaxLoadsPerPump {
			return
		}
		e := &c.entries[i]
		if e.state != Unloaded && e.state != Evicted {
			continue
		}
		// Visibility filter; the first sighting counts.
		if !e.fresh && frame-e.lastUsed > 1 {
			continue
		}
		if frame < e.nextAttempt {
			continue
		}
		e.state = Loading
		e.fresh = false
		c.pool.enqueue(decodeReq{
			h:      Handle(i + 1),
			path:   e.key.Path,
			data:   e.key.Bytes,
			maxDim: c.conf.MaxUploadDimension,
			decode: c.conf.Decode,
		})
		n++
	}
}

// tryMakeSpace evicts entries not used this frame, oldest
// first, until need bytes fit under the GPU budget.
func (c *Cache) tryMakeSpace(need int64, frame uint64) {
	for c.resident+need > c.conf.GPUBudgetBytes {
		h := c.oldestResident(frame)
		if h == 0 {
			return
		}
		c.evict(c.entryOf(h), frame)
	}
}

// oldestResident returns the resident entry with the oldest
// LRU timestamp, skipping entries used this frame.
// Zero means no candidate.
func (c *Cache) oldestResident(frame uint64) Handle {
	var h Handle
	var oldest uint64
	for i := range c.entries {
		e := &c.entries[i]
		if e.state != Resident || e.lastUsed == frame {
			continue
		}
		if h == 0 || e.lastUsed < oldest {
			h = Handle(i + 1)
			oldest = e.lastUsed
		}
	}
	return h
}

// evict frees an entry's GPU image and rewrites its watched
// sites to their fallback views.
func (c *Cache) evict(e *entry, frame uint64) {
	c.patchAll(e, nil)
	ctxt.DeferDestroy(e.view)
	ctxt.DeferDestroy(e.img)
	e.view = nil
	e.img = nil
	c.resident -= e.size
	e.size = 0
	e.state = Evicted
	e.lastEvicted = frame
	e.nextAttempt = frame + c.conf.ReloadCooldownFrames
}

// EvictToBudget evicts resident entries by ascending LRU
// timestamp until the footprint fits budget.
// Entries used this frame are skipped.
func (c *Cache) EvictToBudget(budget int64, frame uint64) {
	for c.resident > budget {
		h := c.oldestResident(frame)
		if h == 0 {
			return
		}
		c.evict(c.entryOf(h), frame)
	}
}

// evictCPUToBudget drops retained byte sources of resident
// entries, oldest first, until under the CPU source budget.
func (c *Cache) evictCPUToBudget() {
	if c.conf.CPUSourceBudget <= 0 {
		return
	}
	for c.cpuSrc > c.conf.CPUSourceBudget {
		var cand *entry
		for i := range c.entries {
			e := &c.entries[i]
			if e.state != Resident || len(e.key.Bytes) == 0 {
				continue
			}
			if cand == nil || e.lastUsed < cand.lastUsed {
				cand = e
			}
		}
		if cand == nil {
			return
		}
		c.cpuSrc -= int64(len(cand.key.Bytes))
		cand.key.Bytes = nil
	}
}
