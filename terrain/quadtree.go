// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package terrain

import (
	"github.com/chewxy/math32"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/linear"
)

// Settings drives screen-space quadtree selection.
type Settings struct {
	// MaxLevel bounds subdivision depth.
	MaxLevel int
	// SplitPixels subdivides a node while its projected
	// size exceeds this many pixels.
	SplitPixels float32
	// ScreenHeight is the render target height in pixels.
	ScreenHeight int
	// FovY is the vertical field of view in radians.
	FovY float32
}

// DefaultSettings returns the default selection settings.
func DefaultSettings() Settings {
	return Settings{
		MaxLevel:     12,
		SplitPixels:  256,
		ScreenHeight: 1080,
		FovY:         math32.Pi / 3,
	}
}

// selectLeaves traverses the six face quadtrees and returns
// the desired leaf set for a camera at cam, given in
// planet-local coordinates.
func selectLeaves(cam linear.V3, radius float32, s *Settings) []PatchKey {
	// Pixels per radian at screen center.
	scale := float32(s.ScreenHeight) / (2 * math32.Tan(s.FovY/2))
	var leaves []PatchKey
	var visit func(k PatchKey)
	visit = func(k PatchKey) {
		if k.Level < s.MaxLevel && projectedSize(k, cam, radius)*scale > s.SplitPixels {
			for i := 0; i < 4; i++ {
				visit(k.Child(i))
			}
			return
		}
		leaves = append(leaves, k)
	}
	for f := Face(0); f < NumFaces; f++ {
		visit(PatchKey{Face: f})
	}
	return leaves
}

// projectedSize estimates the angular size of a patch as
// seen from cam: surface arc length over distance.
func projectedSize(k PatchKey, cam linear.V3, radius float32) float32 {
	u, v := k.Center()
	p := linear.ScaleV3(radius, UnitDir(k.Face, u, v))
	dist := linear.LenV3(linear.SubV3(cam, p))
	arc := radius * (math32.Pi / 2) / float32(int(1)<<k.Level)
	if dist < arc/2 {
		dist = arc / 2
	}
	return arc / dist
}

// Edge bits of the stitch mask.
const (
	EdgeTop uint8 = 1 << iota
	EdgeRight
	EdgeBottom
	EdgeLeft
)

// edgeProbeFracs are the fractional positions sampled along
// each edge when probing the neighbor's level.
var edgeProbeFracs = [3]float32{0.25, 0.5, 0.75}

// stitchMasks computes the per-leaf 4-bit edge masks: a bit
// is set when any probe across that edge lands in a coarser
// desired leaf.
func stitchMasks(desired []PatchKey) map[PatchKey]uint8 {
	set := make(map[PatchKey]bool, len(desired))
	for _, k := range desired {
		set[k] = true
	}
	masks := make(map[PatchKey]uint8, len(desired))
	for _, k := range desired {
		var m uint8
		u0, v0, size := k.UVRect()
		eps := size / 16
		for _, fr := range edgeProbeFracs {
			du := u0 + size*fr
			dv := v0 + size*fr
			if coarserAt(set, k, du, v0+size+eps) {
				m |= EdgeTop
			}
			if coarserAt(set, k, u0+size+eps, dv) {
				m |= EdgeRight
			}
			if coarserAt(set, k, du, v0-eps) {
				m |= EdgeBottom
			}
			if coarserAt(set, k, u0-eps, dv) {
				m |= EdgeLeft
			}
		}
		masks[k] = m
	}
	return masks
}

// coarserAt reports whether the desired leaf containing the
// given face-local point (possibly beyond the face border,
// resolved through the 3D direction) is coarser than k.
func coarserAt(set map[PatchKey]bool, k PatchKey, u, v float32) bool {
	f2, u2, v2 := DirToFaceUV(UnitDir(k.Face, u, v))
	for l := k.Level; l >= 0; l-- {
		if set[keyAt(f2, l, u2, v2)] {
			return l < k.Level
		}
	}
	return false
}

// keyAt returns the level-l key containing face point (u,v).
func keyAt(f Face, l int, u, v float32) PatchKey {
	n := int(1) << l
	x := int(clamp01(u) * float32(n))
	y := int(clamp01(v) * float32(n))
	if x >= n {
		x = n - 1
	}
	if y >= n {
		y = n - 1
	}
	return PatchKey{f, l, x, y}
}

// renderCut emits a hole-free set of keys covering every
// desired leaf, substituting the closest ready ancestor for
// subtrees that cannot emit full ready coverage.
func renderCut(desired []PatchKey, isReady func(PatchKey) bool) []PatchKey {
	set := make(map[PatchKey]bool, len(desired))
	masks := make(map[PatchKey]uint8)
	for _, k := range desired {
		set[k] = true
		for c := k; c.Level > 0; {
			p := c.Parent()
			masks[p] |= 1 << c.childIndex()
			c = p
		}
	}
	var out []PatchKey
	var visit func(k PatchKey) bool
	visit = func(k PatchKey) bool {
		if set[k] && isReady(k) {
			out = append(out, k)
			return true
		}
		if m, ok := masks[k]; ok {
			mark := len(out)
			good := true
			for i := 0; i < 4 && good; i++ {
				if m&(1<<i) != 0 && !visit(k.Child(i)) {
					good = false
				}
			}
			if good {
				return true
			}
			// Partial coverage is a hole; substitute this
			// node if possible.
			out = out[:mark]
		}
		if isReady(k) {
			out = append(out, k)
			return true
		}
		return false
	}
	for f := Face(0); f < NumFaces; f++ {
		root := PatchKey{Face: f}
		if set[root] || masks[root] != 0 {
			visit(root)
		}
	}
	return out
}
