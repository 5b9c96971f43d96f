// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package terrain

import (
	"container/list"
	"path/filepath"
	"time"

	"github.com/chewxy/math32"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/internal/bitm"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/internal/ctxt"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/linear"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/texcache"
)

// PatchState is the lifecycle state of a cached patch.
type PatchState int

// Patch states.
const (
	Pending PatchState = iota
	Ready
)

// Patch is one cached quadtree node mesh.
// Patches are mutated only on the record thread.
type Patch struct {
	Key    PatchKey
	State  PatchState
	Stitch uint8
	// Vertex buffer and its GPU address; non-nil while
	// Ready.
	VertBuf driver.Buffer
	Addr    uint64
	// Bounds relative to the planet center.
	Anchor linear.V3
	Radius float32
	// Slot indexes the per-patch GPU table; reused through
	// the free-list.
	Slot     int
	lastUsed uint64
	lruElem  *list.Element
}

// Config holds the terrain tunables.
type Config struct {
	// Resolution is the patch grid side N, clamped to 2.
	Resolution int
	// PatchesPerFrame bounds patch builds per update.
	PatchesPerFrame int
	// MSBudget bounds the wall time spent building patches
	// per update, in milliseconds. Zero means unbounded.
	MSBudget float64
	// CacheMax bounds the patch cache size.
	CacheMax int
	// DebugTintByLOD colors draws by quadtree level.
	DebugTintByLOD bool
	// Select drives screen-space leaf selection.
	Select Settings
	// TextureDir is the per-body directory the face
	// material textures are loaded from.
	TextureDir string
}

// DefaultConfig returns the default terrain tunables.
func DefaultConfig() Config {
	return Config{
		Resolution:      33,
		PatchesPerFrame: 8,
		MSBudget:        4,
		CacheMax:        512,
		Select:          DefaultSettings(),
	}
}

// Material binds the textures of one cube face.
// Texture handles resolve through the streaming cache;
// late-arriving textures patch descriptor sets in place.
type Material struct {
	Albedo    texcache.Handle
	Normal    texcache.Handle
	Roughness texcache.Handle
	Metallic  texcache.Handle
	Emissive  texcache.Handle
	// Consts is the shared material-constants uniform
	// buffer.
	Consts driver.Buffer
}

// Draw is one patch draw emitted by Update.
type Draw struct {
	Key PatchKey
	// VertBuf and Addr locate the patch vertices.
	VertBuf driver.Buffer
	Addr    uint64
	// IndexBuf is the per-resolution shared index buffer.
	IndexBuf   driver.Buffer
	IndexCount int
	Material   *Material
	// Anchor translates the patch into planet-local space:
	// world position is planet center + Anchor.
	Anchor linear.V3
	Radius float32
	Level  int
	Slot   int
}

// Terrain is the per-planet quadtree state.
// It must only be used from the record thread.
type Terrain struct {
	conf      Config
	radius    float32
	amplitude float32
	hm        Heightmap

	lookup map[PatchKey]*Patch
	// LRU front is most recently used.
	lru   *list.List
	slots bitm.Bitm[uint32]

	indexBuf   driver.Buffer
	indexCount int
	indexRes   int

	mats  [6]Material
	cache *texcache.Cache

	viewProj *linear.M4

	desired []PatchKey
	masks   map[PatchKey]uint8
	draws   []Draw
}

// New creates a terrain body.
// radius and amplitude are in meters; hm may be nil for a
// smooth sphere.
func New(conf Config, radius, amplitude float32, hm Heightmap) *Terrain {
	if conf.Resolution < 2 {
		conf.Resolution = 2
	}
	return &Terrain{
		conf:      conf,
		radius:    radius,
		amplitude: amplitude,
		hm:        hm,
		lookup:    make(map[PatchKey]*Patch),
		lru:       list.New(),
	}
}

// BindMaterials requests the six per-face texture sets from
// the streaming cache.
// Face textures are keyed by file path under the configured
// texture directory.
func (t *Terrain) BindMaterials(cache *texcache.Cache, consts driver.Buffer, splr driver.Sampler) {
	t.cache = cache
	names := [...]struct {
		h    func(m *Material) *texcache.Handle
		file string
		srgb bool
	}{
		{func(m *Material) *texcache.Handle { return &m.Albedo }, "albedo", true},
		{func(m *Material) *texcache.Handle { return &m.Normal }, "normal", false},
		{func(m *Material) *texcache.Handle { return &m.Roughness }, "roughness", false},
		{func(m *Material) *texcache.Handle { return &m.Metallic }, "metallic", false},
		{func(m *Material) *texcache.Handle { return &m.Emissive }, "emissive", true},
	}
	for f := Face(0); f < NumFaces; f++ {
		m := &t.mats[f]
		m.Consts = consts
		for _, nm := range names {
			path := filepath.Join(t.conf.TextureDir, f.String()+"_"+nm.file+".ktx2")
			*nm.h(m) = cache.Request(&texcache.Key{
				Path:   path,
				SRGB:   nm.srgb,
				Mipmap: true,
			}, splr)
		}
	}
}

// Material returns the face's material.
func (t *Terrain) Material(f Face) *Material { return &t.mats[f] }

// SetViewProjection installs the planet-local clip transform
// Update culls draws against.
// A nil m disables culling. The matrix must not change while
// Update runs.
func (t *Terrain) SetViewProjection(m *linear.M4) { t.viewProj = m }

// Update runs one frame of terrain maintenance: leaf
// selection, stitch masks, budgeted patch builds, the
// hole-free render cut, frustum culling and LRU upkeep.
// cam is the camera position relative to the planet center.
// The resulting draws are available through Draws.
func (t *Terrain) Update(cam linear.V3, frame uint64) error {
	t.desired = selectLeaves(cam, t.radius, &t.conf.Select)
	t.masks = stitchMasks(t.desired)

	if err := t.ensureIndexBuffer(); err != nil {
		return err
	}
	if err := t.buildBudgeted(frame); err != nil {
		return err
	}

	cut := renderCut(t.desired, func(k PatchKey) bool {
		p, ok := t.lookup[k]
		return ok && p.State == Ready
	})

	var fr *frustum
	if t.viewProj != nil {
		f := newFrustum(t.viewProj)
		fr = &f
	}
	t.draws = t.draws[:0]
	for _, k := range cut {
		p := t.lookup[k]
		t.touch(p, frame)
		if fr != nil && !fr.intersectsSphere(p.Anchor, p.Radius) {
			continue
		}
		t.draws = append(t.draws, Draw{
			Key:        k,
			VertBuf:    p.VertBuf,
			Addr:       p.Addr,
			IndexBuf:   t.indexBuf,
			IndexCount: t.indexCount,
			Material:   &t.mats[k.Face],
			Anchor:     p.Anchor,
			Radius:     p.Radius,
			Level:      k.Level,
			Slot:       p.Slot,
		})
	}
	t.trimPatchCache(frame)
	return nil
}

// Draws returns the draws emitted by the last Update call.
// The slice must not be modified.
func (t *Terrain) Draws() []Draw { return t.draws }

// DesiredLeaves returns the last selection result.
func (t *Terrain) DesiredLeaves() []PatchKey { return t.desired }

// StitchMask returns the last computed mask of a desired
// leaf.
func (t *Terrain) StitchMask(k PatchKey) uint8 { return t.masks[k] }

// CacheLen returns the number of cached patches.
func (t *Terrain) CacheLen() int { return len(t.lookup) }

// touch moves a patch to the LRU front.
func (t *Terrain) touch(p *Patch, frame uint64) {
	p.lastUsed = frame
	t.lru.MoveToFront(p.lruElem)
}

// buildBudgeted builds or rebuilds desired patches, nearest
// level first, until the per-frame count or time budget is
// exhausted.
func (t *Terrain) buildBudgeted(frame uint64) error {
	order := make([]PatchKey, len(t.desired))
	copy(order, t.desired)
	// Higher LOD patches are nearer; build those first.
	sortKeys(order)

	start := time.Now()
	built := 0
	for _, k := range order {
		if built >= t.conf.PatchesPerFrame {
			break
		}
		if t.conf.MSBudget > 0 && built > 0 {
			if ms := float64(time.Since(start)) / float64(time.Millisecond); ms > t.conf.MSBudget {
				break
			}
		}
		p, ok := t.lookup[k]
		if ok {
			t.touch(p, frame)
			if p.State == Ready && p.Stitch == t.masks[k] {
				continue
			}
		} else {
			p = &Patch{Key: k, Slot: t.allocSlot()}
			p.lruElem = t.lru.PushFront(p)
			t.lookup[k] = p
			p.lastUsed = frame
		}
		if err := t.buildPatch(p, t.masks[k]); err != nil {
			return err
		}
		built++
	}
	return nil
}

// sortKeys orders by (level descending, face, x, y).
func sortKeys(keys []PatchKey) {
	less := func(a, b PatchKey) bool {
		switch {
		case a.Level != b.Level:
			return a.Level > b.Level
		case a.Face != b.Face:
			return a.Face < b.Face
		case a.X != b.X:
			return a.X < b.X
		}
		return a.Y < b.Y
	}
	// Insertion sort; desired sets are small and mostly
	// ordered across frames.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && less(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

// buildPatch (re)builds a patch's vertex buffer.
// A replaced buffer is queued for deferred destruction.
func (t *Terrain) buildPatch(p *Patch, stitch uint8) error {
	verts, anchor := buildPatchMesh(&meshParams{
		key:       p.Key,
		res:       t.conf.Resolution,
		radius:    t.radius,
		amplitude: t.amplitude,
		hm:        t.hm,
		stitch:    stitch,
	})
	data := packVerts(verts)
	buf, err := ctxt.GPU().NewBuffer(int64(len(data)), true, driver.UVertexData|driver.UShaderRead)
	if err != nil {
		return err
	}
	copy(buf.Bytes(), data)

	if p.VertBuf != nil {
		ctxt.DeferDestroy(p.VertBuf)
	}
	p.VertBuf = buf
	p.Addr = buf.DeviceAddress()
	p.Anchor = anchor
	p.Radius = boundsRadius(verts)
	p.Stitch = stitch
	p.State = Ready
	return nil
}

// boundsRadius returns the anchor-relative bounding sphere
// radius of a vertex set.
func boundsRadius(verts []Vertex) float32 {
	var r2 float32
	for i := range verts {
		p := verts[i].Pos
		d2 := linear.DotV3(p, p)
		if d2 > r2 {
			r2 = d2
		}
	}
	return math32.Sqrt(r2)
}

// ensureIndexBuffer (re)creates the shared per-resolution
// index buffer.
func (t *Terrain) ensureIndexBuffer() error {
	if t.indexBuf != nil && t.indexRes == t.conf.Resolution {
		return nil
	}
	idx := buildIndices(t.conf.Resolution)
	data := packIndices(idx)
	buf, err := ctxt.GPU().NewBuffer(int64(len(data)), true, driver.UIndexData)
	if err != nil {
		return err
	}
	copy(buf.Bytes(), data)
	if t.indexBuf != nil {
		ctxt.DeferDestroy(t.indexBuf)
	}
	t.indexBuf = buf
	t.indexCount = len(idx)
	t.indexRes = t.conf.Resolution
	return nil
}

// allocSlot reserves a per-patch table index from the
// free-list, growing it as needed.
func (t *Terrain) allocSlot() int {
	if t.slots.Rem() == 0 {
		t.slots.Grow(1)
	}
	s, ok := t.slots.Search()
	if !ok {
		panic(prefix + "slot allocation failed")
	}
	t.slots.Set(s)
	return s
}

// trimPatchCache evicts LRU patches above CacheMax,
// skipping patches used this frame.
// The guard bounds the scan so a frame that touched every
// patch cannot loop forever.
func (t *Terrain) trimPatchCache(frame uint64) {
	guard := t.lru.Len()
	for len(t.lookup) > t.conf.CacheMax && guard > 0 {
		guard--
		e := t.lru.Back()
		if e == nil {
			return
		}
		p := e.Value.(*Patch)
		if p.lastUsed == frame {
			// Everything older was already evicted.
			return
		}
		t.evictPatch(p)
	}
}

// evictPatch removes a patch from the cache and queues its
// buffer for deferred destruction.
func (t *Terrain) evictPatch(p *Patch) {
	if p.VertBuf != nil {
		ctxt.DeferDestroy(p.VertBuf)
	}
	t.lru.Remove(p.lruElem)
	delete(t.lookup, p.Key)
	t.slots.Unset(p.Slot)
}

// Destroy releases every cached patch and the shared index
// buffer.
func (t *Terrain) Destroy() {
	for _, p := range t.lookup {
		if p.VertBuf != nil {
			ctxt.DeferDestroy(p.VertBuf)
		}
	}
	t.lookup = make(map[PatchKey]*Patch)
	t.lru.Init()
	if t.indexBuf != nil {
		ctxt.DeferDestroy(t.indexBuf)
		t.indexBuf = nil
	}
}
