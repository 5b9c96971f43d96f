// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package terrain

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/linear"
)

// Heightmap samples terrain elevation in [0,1] at a face
// point. Implementations must be safe for concurrent reads.
type Heightmap interface {
	Sample(f Face, u, v float32) float32
}

// FaceHeightmap is a per-face 8-bit heightmap with bilinear
// filtering, typically decoded from BC4 containers.
type FaceHeightmap struct {
	Data   [6][]byte
	Width  int
	Height int
}

// Sample implements Heightmap.
func (h *FaceHeightmap) Sample(f Face, u, v float32) float32 {
	d := h.Data[f]
	if len(d) == 0 {
		return 0
	}
	x := clamp01(u) * float32(h.Width-1)
	y := clamp01(v) * float32(h.Height-1)
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 > h.Width-1 {
		x1 = h.Width - 1
	}
	if y1 > h.Height-1 {
		y1 = h.Height - 1
	}
	fx, fy := x-float32(x0), y-float32(y0)
	s00 := float32(d[y0*h.Width+x0])
	s10 := float32(d[y0*h.Width+x1])
	s01 := float32(d[y1*h.Width+x0])
	s11 := float32(d[y1*h.Width+x1])
	return ((s00*(1-fx)+s10*fx)*(1-fy) + (s01*(1-fx)+s11*fx)*fy) / 255
}

// Vertex is one terrain vertex: position relative to the
// patch anchor and outward-oriented normal.
type Vertex struct {
	Pos    linear.V3
	Normal linear.V3
}

// VertexStride is the byte size of one packed vertex.
const VertexStride = 24

// kBlendWidth is the row band over which computed normals
// blend back from the radial boundary normal.
const kBlendWidth = 2

// Skirt depth bounds as fractions of the planet radius.
const (
	skirtBaseFrac = 1e-4
	skirtMinFrac  = 1e-5
	skirtMaxFrac  = 1e-2
)

// meshParams collects the inputs of one patch build.
type meshParams struct {
	key       PatchKey
	res       int
	radius    float32
	amplitude float32
	hm        Heightmap
	stitch    uint8
}

// sampleHeight samples elevation at a face point, remapping
// through the 3D direction when the point sits on or beyond
// the face border so both sides read the same texel.
func sampleHeight(hm Heightmap, f Face, u, v float32) float32 {
	if hm == nil {
		return 0
	}
	const eps = 1e-6
	if u < eps || u > 1-eps || v < eps || v > 1-eps {
		f2, u2, v2 := DirToFaceUV(UnitDir(f, u, v))
		return hm.Sample(f2, u2, v2)
	}
	return hm.Sample(f, u, v)
}

// surfacePoint returns the displaced surface position at a
// face point, relative to the planet center.
func surfacePoint(p *meshParams, u, v float32) linear.V3 {
	d := UnitDir(p.key.Face, u, v)
	h := float32(0)
	if p.amplitude > 0 {
		h = sampleHeight(p.hm, p.key.Face, u, v)
	}
	return linear.ScaleV3(p.radius+h*p.amplitude, d)
}

// buildPatchMesh constructs the N×N grid plus skirt
// vertices of one patch.
// Positions are relative to the returned anchor, which is
// the undisplaced patch center on the sphere.
func buildPatchMesh(p *meshParams) (verts []Vertex, anchor linear.V3) {
	n := p.res
	u0, v0, size := p.key.UVRect()
	cu, cv := p.key.Center()
	anchor = linear.ScaleV3(p.radius, UnitDir(p.key.Face, cu, cv))

	verts = make([]Vertex, n*n+4*n)
	du := size / float32(n-1)
	uv := func(i, j int) (float32, float32) {
		return u0 + du*float32(i), v0 + du*float32(j)
	}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			u, v := uv(i, j)
			verts[j*n+i].Pos = linear.SubV3(surfacePoint(p, u, v), anchor)
		}
	}

	collapseEdges(verts, n, p.stitch, collapsePos)
	computeNormals(verts, n, anchor)
	refineEdgeNormals(verts, p, n)
	collapseEdges(verts, n, p.stitch, collapseNrm)
	buildSkirt(verts, n, p.radius, anchor)
	return verts, anchor
}

const (
	collapsePos = iota
	collapseNrm
)

// collapseEdges averages odd midpoints on 2:1 stitched
// edges so the fine side interpolates exactly like the
// coarse side's edge segments.
func collapseEdges(verts []Vertex, n int, stitch uint8, what int) {
	edge := func(at func(s int) int) {
		for s := 1; s < n-1; s += 2 {
			a, b, c := &verts[at(s-1)], &verts[at(s)], &verts[at(s+1)]
			if what == collapsePos {
				b.Pos = linear.ScaleV3(0.5, linear.AddV3(a.Pos, c.Pos))
			} else {
				b.Normal = linear.NormV3(linear.AddV3(a.Normal, c.Normal))
			}
		}
	}
	if stitch&EdgeTop != 0 {
		edge(func(s int) int { return (n-1)*n + s })
	}
	if stitch&EdgeRight != 0 {
		edge(func(s int) int { return s*n + n - 1 })
	}
	if stitch&EdgeBottom != 0 {
		edge(func(s int) int { return s })
	}
	if stitch&EdgeLeft != 0 {
		edge(func(s int) int { return s * n })
	}
}

// computeNormals derives grid normals from neighbor
// positions. Border vertices keep the outward radial
// normal; the first kBlendWidth interior rows blend from
// radial to computed.
func computeNormals(verts []Vertex, n int, anchor linear.V3) {
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			radial := linear.NormV3(linear.AddV3(anchor, verts[j*n+i].Pos))
			d := i
			if j < d {
				d = j
			}
			if n-1-i < d {
				d = n - 1 - i
			}
			if n-1-j < d {
				d = n - 1 - j
			}
			if d == 0 {
				verts[j*n+i].Normal = radial
				continue
			}
			du := linear.SubV3(verts[j*n+i+1].Pos, verts[j*n+i-1].Pos)
			dv := linear.SubV3(verts[(j+1)*n+i].Pos, verts[(j-1)*n+i].Pos)
			nrm := linear.NormV3(linear.Cross(du, dv))
			if linear.DotV3(nrm, radial) < 0 {
				nrm = linear.ScaleV3(-1, nrm)
			}
			if d <= kBlendWidth {
				t := float32(d) / float32(kBlendWidth+1)
				nrm = linear.NormV3(linear.LerpV3(radial, nrm, t))
			}
			verts[j*n+i].Normal = nrm
		}
	}
}

// refineEdgeNormals recomputes the normals of the two-row
// edge band from heightmap samples taken a small angular
// step away, so normals agree across patch boundaries.
// The step doubles on stitched edges.
func refineEdgeNormals(verts []Vertex, p *meshParams, n int) {
	if p.hm == nil || p.amplitude <= 0 {
		return
	}
	u0, v0, size := p.key.UVRect()
	du := size / float32(n-1)
	anchor := anchorOf(p)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			d := i
			if j < d {
				d = j
			}
			if n-1-i < d {
				d = n - 1 - i
			}
			if n-1-j < d {
				d = n - 1 - j
			}
			if d > 1 {
				continue
			}
			step := du
			if onStitchedEdge(p.stitch, n, i, j) {
				step *= 2
			}
			u := u0 + du*float32(i)
			v := v0 + du*float32(j)
			pu := linear.SubV3(surfacePoint(p, u+step, v), surfacePoint(p, u-step, v))
			pv := linear.SubV3(surfacePoint(p, u, v+step), surfacePoint(p, u, v-step))
			nrm := linear.NormV3(linear.Cross(pu, pv))
			radial := linear.NormV3(linear.AddV3(anchor, verts[j*n+i].Pos))
			if linear.DotV3(nrm, radial) < 0 {
				nrm = linear.ScaleV3(-1, nrm)
			}
			verts[j*n+i].Normal = nrm
		}
	}
}

func anchorOf(p *meshParams) linear.V3 {
	cu, cv := p.key.Center()
	return linear.ScaleV3(p.radius, UnitDir(p.key.Face, cu, cv))
}

// onStitchedEdge reports whether grid vertex (i, j) lies on
// an edge marked in the stitch mask.
func onStitchedEdge(stitch uint8, n, i, j int) bool {
	switch {
	case stitch&EdgeTop != 0 && j == n-1:
		return true
	case stitch&EdgeRight != 0 && i == n-1:
		return true
	case stitch&EdgeBottom != 0 && j == 0:
		return true
	case stitch&EdgeLeft != 0 && i == 0:
		return true
	}
	return false
}

// buildSkirt appends the 4·N skirt vertices: each border
// vertex sunk toward the planet center.
// Skirt edge order is top, right, bottom, left.
func buildSkirt(verts []Vertex, n int, radius float32, anchor linear.V3) {
	base := n * n
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
	minD := radius * skirtMinFrac
	maxD := radius * skirtMaxFrac
	baseD := radius * skirtBaseFrac
	for e := 0; e < 4; e++ {
		for s := 0; s < n; s++ {
			ev := verts[edgeAt(e, s)]
			abs := linear.AddV3(anchor, ev.Pos)
			rdir := linear.NormV3(abs)
			depth := math32.Abs(linear.LenV3(abs)-radius) * 3
			if depth < baseD {
				depth = baseD
			}
			if depth < minD {
				depth = minD
			}
			if depth > maxD {
				depth = maxD
			}
			verts[base+e*n+s] = Vertex{
				Pos:    linear.SubV3(ev.Pos, linear.ScaleV3(depth, rdir)),
				Normal: ev.Normal,
			}
		}
	}
}

// buildIndices generates the shared index buffer for a
// given patch resolution: the N×N grid plus the four skirt
// strips, 2(N−1)(N+3) triangles in total.
func buildIndices(n int) []uint32 {
	idx := make([]uint32, 0, 6*(n-1)*(n+3))
	quad := func(a, b, c, d uint32) {
		idx = append(idx, a, c, b, b, c, d)
	}
	for j := 0; j < n-1; j++ {
		for i := 0; i < n-1; i++ {
			a := uint32(j*n + i)
			quad(a, a+1, a+uint32(n), a+uint32(n)+1)
		}
	}
	base := uint32(n * n)
	edgeAt := func(e, s int) uint32 {
		switch e {
		case 0:
			return uint32((n-1)*n + s)
		case 1:
			return uint32(s*n + n - 1)
		case 2:
			return uint32(s)
		}
		return uint32(s * n)
	}
	for e := 0; e < 4; e++ {
		for s := 0; s < n-1; s++ {
			g0, g1 := edgeAt(e, s), edgeAt(e, s+1)
			k0 := base + uint32(e*n+s)
			quad(g0, g1, k0, k0+1)
		}
	}
	return idx
}

// packVerts serializes vertices for upload.
func packVerts(verts []Vertex) []byte {
	out := make([]byte, len(verts)*VertexStride)
	le := binary.LittleEndian
	for i, v := range verts {
		o := i * VertexStride
		le.PutUint32(out[o:], math.Float32bits(v.Pos[0]))
		le.PutUint32(out[o+4:], math.Float32bits(v.Pos[1]))
		le.PutUint32(out[o+8:], math.Float32bits(v.Pos[2]))
		le.PutUint32(out[o+12:], math.Float32bits(v.Normal[0]))
		le.PutUint32(out[o+16:], math.Float32bits(v.Normal[1]))
		le.PutUint32(out[o+20:], math.Float32bits(v.Normal[2]))
	}
	return out
}

// packIndices serializes the shared index buffer.
func packIndices(idx []uint32) []byte {
	out := make([]byte, len(idx)*4)
	for i, x := range idx {
		binary.LittleEndian.PutUint32(out[i*4:], x)
	}
	return out
}
