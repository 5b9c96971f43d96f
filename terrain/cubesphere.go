// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package terrain implements the planet terrain quadtree:
// cube-sphere patch selection, stitched mesh construction
// with skirts, a hole-free render cut and an LRU patch
// cache.
package terrain

import (
	"github.com/chewxy/math32"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/linear"
)

const prefix = "terrain: "

// Face identifies one face of the cube-sphere.
type Face int

// Cube faces.
const (
	FacePX Face = iota
	FaceNX
	FacePY
	FaceNY
	FacePZ
	FaceNZ
	NumFaces
)

// String implements fmt.Stringer.
func (f Face) String() string {
	switch f {
	case FacePX:
		return "+X"
	case FaceNX:
		return "-X"
	case FacePY:
		return "+Y"
	case FaceNY:
		return "-Y"
	case FacePZ:
		return "+Z"
	case FaceNZ:
		return "-Z"
	}
	return "!terrain.Face"
}

// UnitDir maps face-local (u, v) in [0,1]² to a unit
// direction on the sphere.
// DirToFaceUV is its inverse up to floating-point epsilon.
func UnitDir(f Face, u, v float32) linear.V3 {
	s := 2*u - 1
	t := 2*v - 1
	var d linear.V3
	switch f {
	case FacePX:
		d = linear.V3{1, t, -s}
	case FaceNX:
		d = linear.V3{-1, t, s}
	case FacePY:
		d = linear.V3{s, 1, -t}
	case FaceNY:
		d = linear.V3{s, -1, t}
	case FacePZ:
		d = linear.V3{s, t, 1}
	case FaceNZ:
		d = linear.V3{-s, t, -1}
	default:
		panic(prefix + "undefined Face constant")
	}
	return linear.NormV3(d)
}

// DirToFaceUV maps a direction to the face that owns it and
// the face-local (u, v).
func DirToFaceUV(d linear.V3) (f Face, u, v float32) {
	ax := math32.Abs(d[0])
	ay := math32.Abs(d[1])
	az := math32.Abs(d[2])
	var s, t float32
	switch {
	case ax >= ay && ax >= az:
		if d[0] > 0 {
			f = FacePX
			s, t = -d[2]/ax, d[1]/ax
		} else {
			f = FaceNX
			s, t = d[2]/ax, d[1]/ax
		}
	case ay >= az:
		if d[1] > 0 {
			f = FacePY
			s, t = d[0]/ay, -d[2]/ay
		} else {
			f = FaceNY
			s, t = d[0]/ay, d[2]/ay
		}
	default:
		if d[2] > 0 {
			f = FacePZ
			s, t = d[0]/az, d[1]/az
		} else {
			f = FaceNZ
			s, t = -d[0]/az, d[1]/az
		}
	}
	return f, (s + 1) / 2, (t + 1) / 2
}

// clamp01 clamps to the face parameter range.
func clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
