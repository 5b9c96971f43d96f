// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package terrain

import (
	"testing"

	"github.com/chewxy/math32"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/linear"
)

// bumpHM is a deterministic analytic heightmap.
type bumpHM struct{}

func (bumpHM) Sample(f Face, u, v float32) float32 {
	return (math32.Sin(u*7) + math32.Cos(v*5) + 2) / 4
}

func TestUnitDirInverse(t *testing.T) {
	for f := Face(0); f < NumFaces; f++ {
		for _, u := range []float32{0.1, 0.33, 0.5, 0.77, 0.9} {
			for _, v := range []float32{0.05, 0.4, 0.5, 0.62, 0.95} {
				f2, u2, v2 := DirToFaceUV(UnitDir(f, u, v))
				if f2 != f {
					t.Fatalf("face of (%v, %v, %v):\nhave %v\nwant %v", f, u, v, f2, f)
				}
				if math32.Abs(u2-u) > 1e-5 || math32.Abs(v2-v) > 1e-5 {
					t.Fatalf("uv of (%v, %v, %v):\nhave %v, %v\nwant %v, %v", f, u, v, u2, v2, u, v)
				}
			}
		}
	}
}

func TestKeyRelations(t *testing.T) {
	k := PatchKey{FacePZ, 2, 1, 3}
	if p := k.Parent(); p != (PatchKey{FacePZ, 1, 0, 1}) {
		t.Fatalf("Parent:\nhave %v\nwant +Z/L1/0,1", p)
	}
	for i := 0; i < 4; i++ {
		c := k.Child(i)
		if c.Parent() != k {
			t.Fatalf("Child(%d).Parent:\nhave %v\nwant %v", i, c.Parent(), k)
		}
		if c.childIndex() != i {
			t.Fatalf("childIndex:\nhave %d\nwant %d", c.childIndex(), i)
		}
	}
	if !k.Parent().Contains(k) || k.Contains(k.Parent()) {
		t.Fatal("Contains disagrees with Parent")
	}
}

func TestStitchMasks(t *testing.T) {
	// One face: three L1 leaves plus the four L2 children
	// of the remaining L1 quadrant.
	base := PatchKey{FacePX, 1, 0, 0}
	desired := []PatchKey{
		{FacePX, 1, 1, 0},
		{FacePX, 1, 0, 1},
		{FacePX, 1, 1, 1},
		base.Child(0), base.Child(1), base.Child(2), base.Child(3),
	}
	masks := stitchMasks(desired)

	if m := masks[base.Child(1)]; m != EdgeRight {
		t.Fatalf("mask of %v:\nhave %04b\nwant %04b", base.Child(1), m, EdgeRight)
	}
	if m := masks[base.Child(2)]; m != EdgeTop {
		t.Fatalf("mask of %v:\nhave %04b\nwant %04b", base.Child(2), m, EdgeTop)
	}
	if m := masks[base.Child(3)]; m != EdgeTop|EdgeRight {
		t.Fatalf("mask of %v:\nhave %04b\nwant %04b", base.Child(3), m, EdgeTop|EdgeRight)
	}
	if m := masks[base.Child(0)]; m != 0 {
		t.Fatalf("mask of %v:\nhave %04b\nwant 0", base.Child(0), m)
	}
	// The coarser leaves never stitch toward finer ones.
	if m := masks[PatchKey{FacePX, 1, 1, 0}]; m != 0 {
		t.Fatalf("coarse leaf mask:\nhave %04b\nwant 0", m)
	}
}

func TestRenderCutExact(t *testing.T) {
	base := PatchKey{FacePX, 1, 0, 0}
	desired := []PatchKey{
		{FacePX, 1, 1, 0},
		{FacePX, 1, 0, 1},
		{FacePX, 1, 1, 1},
		base.Child(0), base.Child(1), base.Child(2), base.Child(3),
	}
	ready := make(map[PatchKey]bool, len(desired))
	for _, k := range desired {
		ready[k] = true
	}
	cut := renderCut(desired, func(k PatchKey) bool { return ready[k] })
	if len(cut) != len(desired) {
		t.Fatalf("cut size:\nhave %d\nwant %d", len(cut), len(desired))
	}
	have := make(map[PatchKey]bool, len(cut))
	for _, k := range cut {
		if have[k] {
			t.Fatalf("duplicate emission of %v", k)
		}
		have[k] = true
	}
	for _, k := range desired {
		if !have[k] {
			t.Fatalf("missing emission of %v", k)
		}
	}
}

func TestRenderCutRollback(t *testing.T) {
	// All four children desired, one not ready; the ready
	// root substitutes for the whole subtree.
	parent := PatchKey{FacePX, 1, 0, 0}
	root := PatchKey{Face: FacePX}
	desired := []PatchKey{
		parent.Child(0), parent.Child(1), parent.Child(2), parent.Child(3),
	}
	ready := map[PatchKey]bool{
		parent.Child(0): true,
		parent.Child(1): true,
		parent.Child(2): true,
		root:            true,
	}
	cut := renderCut(desired, func(k PatchKey) bool { return ready[k] })
	if len(cut) != 1 || cut[0] != root {
		t.Fatalf("cut:\nhave %v\nwant [%v]", cut, root)
	}
}

func TestTriangleCount(t *testing.T) {
	for _, n := range []int{2, 5, 33} {
		idx := buildIndices(n)
		want := 6 * (n - 1) * (n + 3)
		if len(idx) != want {
			t.Fatalf("indices for N=%d:\nhave %d\nwant %d", n, len(idx), want)
		}
		max := uint32(n*n + 4*n)
		for _, i := range idx {
			if i >= max {
				t.Fatalf("index out of range for N=%d:\nhave %d\nwant < %d", n, i, max)
			}
		}
	}
}

func TestStitchCollapse(t *testing.T) {
	p := meshParams{
		key:       PatchKey{FacePX, 2, 1, 0},
		res:       5,
		radius:    1000,
		amplitude: 50,
		hm:        bumpHM{},
		stitch:    EdgeRight,
	}
	verts, _ := buildPatchMesh(&p)
	n := p.res
	for s := 1; s < n-1; s += 2 {
		a := verts[(s-1)*n+n-1].Pos
		b := verts[s*n+n-1].Pos
		c := verts[(s+1)*n+n-1].Pos
		mid := linear.ScaleV3(0.5, linear.AddV3(a, c))
		if linear.LenV3(linear.SubV3(b, mid)) > 1e-4 {
			t.Fatalf("odd right-edge vertex %d:\nhave %v\nwant %v", s, b, mid)
		}
	}
}

func TestEdgeStitchSymmetry(t *testing.T) {
	// Fine leaf {+X, L2, 1, 0} borders coarse {+X, L1, 1, 0}
	// along u=0.5; the fine side stitches its right edge.
	fine := meshParams{
		key:       PatchKey{FacePX, 2, 1, 0},
		res:       5,
		radius:    1000,
		amplitude: 50,
		hm:        bumpHM{},
		stitch:    EdgeRight,
	}
	coarse := meshParams{
		key:       PatchKey{FacePX, 1, 1, 0},
		res:       5,
		radius:    1000,
		amplitude: 50,
		hm:        bumpHM{},
	}
	fv, fa := buildPatchMesh(&fine)
	cv, ca := buildPatchMesh(&coarse)
	n := 5

	// Even fine right-edge vertices coincide with coarse
	// left-edge vertices at the shared parameters.
	for s := 0; s < n; s += 2 {
		fw := linear.AddV3(fa, fv[s*n+n-1].Pos)
		cw := linear.AddV3(ca, cv[(s/2)*n].Pos)
		if linear.LenV3(linear.SubV3(fw, cw)) > 1e-3 {
			t.Fatalf("shared edge vertex %d:\nhave %v\nwant %v", s, fw, cw)
		}
	}
	// Odd fine midpoints interpolate the coarse segment.
	for s := 1; s < n-1; s += 2 {
		fw := linear.AddV3(fa, fv[s*n+n-1].Pos)
		c0 := linear.AddV3(ca, cv[(s/2)*n].Pos)
		c1 := linear.AddV3(ca, cv[(s/2+1)*n].Pos)
		mid := linear.ScaleV3(0.5, linear.AddV3(c0, c1))
		if linear.LenV3(linear.SubV3(fw, mid)) > 1e-3 {
			t.Fatalf("stitched midpoint %d:\nhave %v\nwant %v", s, fw, mid)
		}
	}
}

func TestSkirtInvariant(t *testing.T) {
	p := meshParams{
		key:       PatchKey{FaceNY, 1, 0, 1},
		res:       9,
		radius:    1000,
		amplitude: 80,
		hm:        bumpHM{},
	}
	verts, anchor := buildPatchMesh(&p)
	n := p.res
	minD := p.radius * skirtMinFrac
	maxD := p.radius * skirtMaxFrac
	edgeAt := func(e, s int) int {
		switch e {
		case 0:
			return (n-1)*n + s
		case 1:
			return s*n + n - 1
		case 2:
			return s
		}
		return s * n
	}
	for e := 0; e < 4; e++ {
		for s := 0; s < n; s++ {
			edge := verts[edgeAt(e, s)].Pos
			skirt := verts[n*n+e*n+s].Pos
			delta := linear.SubV3(edge, skirt)
			depth := linear.LenV3(delta)
			if depth < minD || depth > maxD {
				t.Fatalf("skirt depth (%d, %d):\nhave %v\nwant within [%v, %v]", e, s, depth, minD, maxD)
			}
			rdir := linear.NormV3(linear.AddV3(anchor, edge))
			if linear.DotV3(linear.NormV3(delta), rdir) < 0.9999 {
				t.Fatalf("skirt direction (%d, %d) is not radial", e, s)
			}
		}
	}
}

func TestCacheTrim(t *testing.T) {
	conf := DefaultConfig()
	conf.Resolution = 5
	conf.PatchesPerFrame = 100
	conf.MSBudget = 0
	conf.CacheMax = 3
	tr := New(conf, 1000, 0, nil)
	defer tr.Destroy()

	tr.desired = []PatchKey{
		{Face: FacePX}, {Face: FaceNX}, {Face: FacePY},
		{Face: FaceNY}, {Face: FacePZ}, {Face: FaceNZ},
	}
	tr.masks = stitchMasks(tr.desired)
	if err := tr.buildBudgeted(1); err != nil {
		t.Fatalf("buildBudgeted failed:\n%v", err)
	}
	if n := tr.CacheLen(); n != 6 {
		t.Fatalf("CacheLen:\nhave %d\nwant 6", n)
	}

	// Everything was used this frame: the guard prevents
	// any eviction.
	tr.trimPatchCache(1)
	if n := tr.CacheLen(); n != 6 {
		t.Fatalf("CacheLen after guarded trim:\nhave %d\nwant 6", n)
	}

	// A later frame may evict down to the bound.
	tr.trimPatchCache(2)
	if n := tr.CacheLen(); n != conf.CacheMax {
		t.Fatalf("CacheLen after trim:\nhave %d\nwant %d", n, conf.CacheMax)
	}
}

func TestUpdateEmitsDraws(t *testing.T) {
	conf := DefaultConfig()
	conf.Resolution = 5
	conf.PatchesPerFrame = 100
	conf.MSBudget = 0
	conf.Select.MaxLevel = 0
	tr := New(conf, 1000, 0, nil)
	defer tr.Destroy()

	cam := linear.V3{0, 0, 3000}
	if err := tr.Update(cam, 1); err != nil {
		t.Fatalf("Update failed:\n%v", err)
	}
	draws := tr.Draws()
	if n := len(draws); n != 6 {
		t.Fatalf("draws:\nhave %d\nwant 6", n)
	}
	want := 6 * (conf.Resolution - 1) * (conf.Resolution + 3)
	for _, d := range draws {
		if d.VertBuf == nil || d.IndexBuf == nil {
			t.Fatalf("draw %v has nil buffers", d.Key)
		}
		if d.Addr == 0 {
			t.Fatalf("draw %v has zero device address", d.Key)
		}
		if d.IndexCount != want {
			t.Fatalf("IndexCount:\nhave %d\nwant %d", d.IndexCount, want)
		}
	}
}

func TestBuildOrder(t *testing.T) {
	keys := []PatchKey{
		{FacePX, 1, 1, 0},
		{FacePY, 2, 0, 0},
		{FacePX, 1, 0, 1},
		{FacePX, 2, 1, 1},
	}
	want := []PatchKey{
		{FacePX, 2, 1, 1},
		{FacePY, 2, 0, 0},
		{FacePX, 1, 0, 1},
		{FacePX, 1, 1, 0},
	}
	sortKeys(keys)
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d:\nhave %v\nwant %v", i, keys[i], want[i])
		}
	}
}

func TestFrustumCulling(t *testing.T) {
	conf := DefaultConfig()
	conf.Resolution = 5
	conf.PatchesPerFrame = 100
	conf.MSBudget = 0
	conf.Select.MaxLevel = 0
	tr := New(conf, 1000, 0, nil)
	defer tr.Destroy()

	cam := linear.V3{0, 0, 3000}
	var proj, view, vp linear.M4
	proj.Perspective(math32.Pi/3, 1, 1, 10000)

	// Facing the body: every root patch is visible.
	view.LookAt(cam, linear.V3{}, linear.V3{0, 1, 0})
	vp.Mul(&proj, &view)
	tr.SetViewProjection(&vp)
	if err := tr.Update(cam, 1); err != nil {
		t.Fatalf("Update failed:\n%v", err)
	}
	if n := len(tr.Draws()); n != 6 {
		t.Fatalf("draws facing the body:\nhave %d\nwant 6", n)
	}

	// Facing away: the whole body is behind the camera.
	view.LookAt(cam, linear.V3{0, 0, 6000}, linear.V3{0, 1, 0})
	vp.Mul(&proj, &view)
	if err := tr.Update(cam, 2); err != nil {
		t.Fatalf("Update failed:\n%v", err)
	}
	if n := len(tr.Draws()); n != 0 {
		t.Fatalf("draws facing away:\nhave %d\nwant 0", n)
	}

	// Culling off again.
	tr.SetViewProjection(nil)
	if err := tr.Update(cam, 3); err != nil {
		t.Fatalf("Update failed:\n%v", err)
	}
	if n := len(tr.Draws()); n != 6 {
		t.Fatalf("draws without culling:\nhave %d\nwant 6", n)
	}
}

func TestSelectionSubdivides(t *testing.T) {
	s := DefaultSettings()
	s.MaxLevel = 4
	// Close to the surface: the nearest patches subdivide,
	// the far side does not.
	cam := linear.V3{0, 0, 1010}
	leaves := selectLeaves(cam, 1000, &s)
	var maxLevel int
	seen := make(map[PatchKey]bool, len(leaves))
	for _, k := range leaves {
		if seen[k] {
			t.Fatalf("duplicate leaf %v", k)
		}
		seen[k] = true
		if k.Level > maxLevel {
			maxLevel = k.Level
		}
	}
	if maxLevel == 0 {
		t.Fatal("no subdivision near the surface")
	}
	// The leaf set partitions each face: sibling coverage
	// is checked through parent uniqueness.
	for _, k := range leaves {
		for p := k; p.Level > 0; {
			p = p.Parent()
			if seen[p] {
				t.Fatalf("leaf %v overlaps ancestor %v", k, p)
			}
		}
	}
}
