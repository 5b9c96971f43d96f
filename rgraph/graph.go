// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"fmt"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/internal/ctxt"
)

// Graph accepts pass declarations, compiles a dependency
// order from read/write hazards, synthesizes pre-pass
// barriers and records passes using dynamic rendering.
// A Graph must only be used from the record thread, on the
// current frame's state.
type Graph struct {
	reg    Registry
	passes []*Pass
	// Indices into passes, in compiled order.
	// Only enabled passes appear here.
	order []int
	warns []string
	drawW int
	drawH int
	ts    driver.Timestamps
}

// New creates an empty graph.
func New() *Graph { return &Graph{} }

// Registry returns the graph's resource registry.
func (g *Graph) Registry() *Registry { return &g.reg }

// SetDrawExtent bounds the render area of every pass.
// A zero extent means unbounded.
func (g *Graph) SetDrawExtent(width, height int) {
	g.drawW = width
	g.drawH = height
}

// AddPass appends a pass in insertion order and returns a
// builder for its declarations.
func (g *Graph) AddPass(name string, typ PassType) *PassBuilder {
	p := &Pass{name: name, typ: typ, enabled: true}
	g.passes = append(g.passes, p)
	return &PassBuilder{g, p}
}

// Passes returns the graph's passes in insertion order.
func (g *Graph) Passes() []*Pass { return g.passes }

// Order returns the pass indices in compiled order.
// It is valid after Compile.
func (g *Graph) Order() []int { return g.order }

// Warnings returns the diagnostics produced by the last
// Compile call.
func (g *Graph) Warnings() []string { return g.warns }

// Reset clears the graph for a new frame.
// Transient resources are queued for deferred destruction.
func (g *Graph) Reset() {
	g.reg.Reset()
	g.passes = g.passes[:0]
	g.order = g.order[:0]
	g.warns = g.warns[:0]
}

func (g *Graph) warn(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	g.warns = append(g.warns, s)
	ctxt.Log().Warn(rgPrefix + s)
}

// effImg is the effective per-pass usage of an image.
// When a pass declares both a read and a write of the same
// handle, the write dominates.
type effImg struct {
	u     ImageUsage
	write bool
}

type effBuf struct {
	u     BufUsage
	write bool
}

// effective computes the per-resource effective usages of p.
// The returned key slices preserve declaration order.
func (p *Pass) effective() (ik []ImageHandle, im map[ImageHandle]effImg, bk []BufHandle, bm map[BufHandle]effBuf) {
	im = make(map[ImageHandle]effImg)
	bm = make(map[BufHandle]effBuf)
	for _, a := range p.imgWrites {
		if _, ok := im[a.h]; !ok {
			ik = append(ik, a.h)
		}
		im[a.h] = effImg{a.u, true}
	}
	for _, a := range p.imgReads {
		if _, ok := im[a.h]; ok {
			continue
		}
		ik = append(ik, a.h)
		im[a.h] = effImg{a.u, false}
	}
	for _, a := range p.bufWrites {
		if _, ok := bm[a.h]; !ok {
			bk = append(bk, a.h)
		}
		bm[a.h] = effBuf{a.u, true}
	}
	for _, a := range p.bufReads {
		if _, ok := bm[a.h]; ok {
			continue
		}
		bk = append(bk, a.h)
		bm[a.h] = effBuf{a.u, false}
	}
	return
}

// Compile derives the pass order from read/write hazards
// and synthesizes pre-pass barriers.
// Cycles degrade to insertion order with a warning.
// It returns false only when no GPU context is available.
func (g *Graph) Compile() bool {
	if ctxt.GPU() == nil {
		return false
	}
	g.warns = g.warns[:0]

	// Enabled passes in insertion order.
	var enabled []int
	for i, p := range g.passes {
		if p.enabled {
			enabled = append(enabled, i)
		}
	}

	type resKey struct {
		img bool
		h   int
	}
	adj := make(map[int]map[int]bool)
	indeg := make(map[int]int)
	addEdge := func(u, v int) {
		if u == v {
			return
		}
		if adj[u] == nil {
			adj[u] = make(map[int]bool)
		}
		if !adj[u][v] {
			adj[u][v] = true
			indeg[v]++
		}
	}
	lastWriter := make(map[resKey]int)
	readers := make(map[resKey][]int)
	touch := func(i int, k resKey, write bool) {
		if write {
			// WAW and WAR hazards.
			if w, ok := lastWriter[k]; ok {
				addEdge(w, i)
			}
			for _, r := range readers[k] {
				addEdge(r, i)
			}
			readers[k] = readers[k][:0]
			lastWriter[k] = i
		} else {
			// RAW hazard.
			if w, ok := lastWriter[k]; ok {
				addEdge(w, i)
			}
			readers[k] = append(readers[k], i)
		}
	}
	for _, i := range enabled {
		ik, im, bk, bm := g.passes[i].effective()
		for _, h := range ik {
			touch(i, resKey{true, int(h)}, im[h].write)
		}
		for _, h := range bk {
			touch(i, resKey{false, int(h)}, bm[h].write)
		}
	}

	// Kahn's algorithm; ties resolved by insertion order.
	order := make([]int, 0, len(enabled))
	done := make(map[int]bool)
	for len(order) < len(enabled) {
		next := -1
		for _, i := range enabled {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		order = append(order, next)
		for v := range adj[next] {
			indeg[v]--
		}
	}
	if len(order) != len(enabled) {
		g.warn("dependency cycle detected; retaining insertion order")
		order = order[:0]
		order = append(order, enabled...)
	}
	g.order = order

	g.synthBarriers()
	return true
}

// imgState tracks an image's layout/stage/access across the
// compiled order.
type imgState struct {
	layout driver.Layout
	sync   driver.Sync
	access driver.Access
}

type bufState struct {
	sync   driver.Sync
	access driver.Access
}

// synthBarriers walks the compiled order computing pre-pass
// barriers, validation warnings and resource lifetimes.
func (g *Graph) synthBarriers() {
	imgSt := make(map[ImageHandle]imgState)
	bufSt := make(map[BufHandle]bufState)

	for i := range g.reg.images {
		g.reg.images[i].firstUse = -1
		g.reg.images[i].lastUse = -1
	}
	for i := range g.reg.bufs {
		g.reg.bufs[i].firstUse = -1
		g.reg.bufs[i].lastUse = -1
	}

	for k, idx := range g.order {
		p := g.passes[idx]
		p.transitions = p.transitions[:0]
		p.barriers = p.barriers[:0]

		g.validateAtts(p)

		ik, im, bk, bm := p.effective()
		for _, h := range ik {
			e := im[h]
			rec := g.reg.image(h)
			if rec.firstUse < 0 {
				rec.firstUse = k
			}
			rec.lastUse = k

			if !rec.imported && rec.usage&e.u.creation() != e.u.creation() {
				g.warn("pass %q uses transient image %q as %s without a matching creation flag",
					p.name, rec.name, e.u)
			}

			cur, ok := imgSt[h]
			if !ok {
				cur = imgState{rec.initLayout, rec.initSync, rec.initAccess}
			}
			want := imgState{e.u.layout(), e.u.sync(), e.u.access()}
			if cur != want {
				p.transitions = append(p.transitions, driver.Transition{
					Barrier: driver.Barrier{
						SyncBefore:   cur.sync,
						SyncAfter:    want.sync,
						AccessBefore: cur.access,
						AccessAfter:  want.access,
					},
					LayoutBefore: cur.layout,
					LayoutAfter:  want.layout,
					Img:          rec.img,
					Layer:        0,
					Layers:       rec.layers,
					Level:        0,
					Levels:       rec.levels,
				})
			}
			imgSt[h] = want
		}
		for _, h := range bk {
			e := bm[h]
			rec := g.reg.buffer(h)
			if rec.firstUse < 0 {
				rec.firstUse = k
			}
			rec.lastUse = k

			if !rec.imported && rec.usage&e.u.creation() != e.u.creation() {
				g.warn("pass %q uses transient buffer %q as %s without a matching creation flag",
					p.name, rec.name, e.u)
			}

			cur, ok := bufSt[h]
			if !ok {
				cur = bufState{rec.initSync, rec.initAccess}
			}
			want := bufState{e.u.sync(), e.u.access()}
			if cur != want {
				p.barriers = append(p.barriers, driver.Barrier{
					SyncBefore:   cur.sync,
					SyncAfter:    want.sync,
					AccessBefore: cur.access,
					AccessAfter:  want.access,
					Buf:          rec.buf,
					BufOff:       0,
					BufSize:      rec.size,
				})
			}
			bufSt[h] = want
		}
	}
}

// validateAtts checks attachment formats and extents and
// derives the pass's render area.
func (g *Graph) validateAtts(p *Pass) {
	p.renderW, p.renderH = 0, 0
	var mismatch bool
	grow := func(w, h int) {
		if p.renderW == 0 || w < p.renderW {
			if p.renderW != 0 && w != p.renderW {
				mismatch = true
			}
			p.renderW = w
		} else if w != p.renderW {
			mismatch = true
		}
		if p.renderH == 0 || h < p.renderH {
			if p.renderH != 0 && h != p.renderH {
				mismatch = true
			}
			p.renderH = h
		} else if h != p.renderH {
			mismatch = true
		}
	}
	for i := range p.colorAtts {
		rec := g.reg.image(p.colorAtts[i].Img)
		if rec.format.HasDepth() {
			g.warn("pass %q color attachment %q has depth format", p.name, rec.name)
		}
		grow(rec.width, rec.height)
	}
	if p.depthAtt != nil {
		rec := g.reg.image(p.depthAtt.Img)
		if !rec.format.HasDepth() {
			g.warn("pass %q depth attachment %q has non-depth format", p.name, rec.name)
		}
		grow(rec.width, rec.height)
	}
	if mismatch {
		g.warn("pass %q attachments have mismatched extents; using %dx%d",
			p.name, p.renderW, p.renderH)
	}
}

// Resolved is a read-only view of the graph's resources,
// handed to record callbacks.
type Resolved struct {
	g *Graph
}

// Image returns the driver.Image of h.
func (r *Resolved) Image(h ImageHandle) driver.Image { return r.g.reg.image(h).img }

// View returns the driver.ImageView of h.
// It may be nil for imported images that were registered
// without a view.
func (r *Resolved) View(h ImageHandle) driver.ImageView { return r.g.reg.image(h).view }

// ImageExtent returns the 2D extent of h.
func (r *Resolved) ImageExtent(h ImageHandle) (width, height int) {
	rec := r.g.reg.image(h)
	return rec.width, rec.height
}

// ImageFormat returns the pixel format of h.
func (r *Resolved) ImageFormat(h ImageHandle) driver.PixelFmt { return r.g.reg.image(h).format }

// Buffer returns the driver.Buffer of h.
func (r *Resolved) Buffer(h BufHandle) driver.Buffer { return r.g.reg.buffer(h).buf }
