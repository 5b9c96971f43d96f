// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package terrain

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/linear"
)

// frustum holds the six clip planes of a view-projection
// matrix as inward-pointing (nx, ny, nz, d), with a [0, 1]
// depth range.
type frustum [6]linear.V4

// newFrustum extracts the planes of vp, scaled so plane
// distances are in world units.
func newFrustum(vp *linear.M4) frustum {
	row := func(i int) linear.V4 {
		return linear.V4{vp[0][i], vp[1][i], vp[2][i], vp[3][i]}
	}
	w := row(3)
	fr := frustum{
		linear.AddV4(w, row(0)),
		linear.SubV4(w, row(0)),
		linear.AddV4(w, row(1)),
		linear.SubV4(w, row(1)),
		row(2),
		linear.SubV4(w, row(2)),
	}
	for i := range fr {
		n := linear.LenV3(linear.V3{fr[i][0], fr[i][1], fr[i][2]})
		if n > 0 {
			fr[i] = linear.ScaleV4(1/n, fr[i])
		}
	}
	return fr
}

// intersectsSphere reports whether the sphere at center c
// with radius r reaches into the frustum volume.
func (fr *frustum) intersectsSphere(c linear.V3, r float32) bool {
	p := linear.V4{c[0], c[1], c[2], 1}
	for i := range fr {
		if linear.DotV4(fr[i], p) < -r {
			return false
		}
	}
	return true
}
