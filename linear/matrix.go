// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"github.com/chewxy/math32"
)

// M4 is a column-major 4x4 matrix of float32.
type M4 [4]V4

// I makes m an identity matrix.
func (m *M4) I() { *m = M4{{1}, {0, 1}, {0, 0, 1}, {0, 0, 0, 1}} }

// Mul sets m to contain l ⋅ r.
func (m *M4) Mul(l, r *M4) {
	*m = M4{}
	for i := range m {
		for j := range m {
			for k := range m {
				m[i][j] += l[k][j] * r[i][k]
			}
		}
	}
}

// Translate makes m a translation matrix.
func (m *M4) Translate(x, y, z float32) {
	m.I()
	m[3][0] = x
	m[3][1] = y
	m[3][2] = z
}

// Transpose sets m to contain the transpose of n.
func (m *M4) Transpose(n *M4) {
	for i := range m {
		m[i][i] = n[i][i]
		for j := i + 1; j < len(m); j++ {
			m[i][j], m[j][i] = n[j][i], n[i][j]
		}
	}
}

// MulV4 returns m ⋅ v.
func (m *M4) MulV4(v V4) (u V4) {
	for i := range m {
		u = AddV4(u, ScaleV4(v[i], m[i]))
	}
	return
}

// Perspective makes m a right-handed perspective projection
// with a [0, 1] clip depth range.
// yfov is in radians; znear and zfar must be positive.
func (m *M4) Perspective(yfov, aspect, znear, zfar float32) {
	f := 1 / math32.Tan(yfov/2)
	*m = M4{}
	m[0][0] = f / aspect
	m[1][1] = f
	m[2][2] = zfar / (znear - zfar)
	m[2][3] = -1
	m[3][2] = znear * zfar / (znear - zfar)
}

// LookAt makes m a view matrix for a camera at eye looking
// toward center, with the given up direction.
func (m *M4) LookAt(eye, center, up V3) {
	f := NormV3(SubV3(center, eye))
	s := NormV3(Cross(f, up))
	u := Cross(s, f)
	*m = M4{
		{s[0], u[0], -f[0], 0},
		{s[1], u[1], -f[1], 0},
		{s[2], u[2], -f[2], 0},
		{-DotV3(s, eye), -DotV3(u, eye), DotV3(f, eye), 1},
	}
}
