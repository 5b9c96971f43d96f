// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestV3(t *testing.T) {
	v := V3{1, 2, 3}
	w := V3{4, -5, 6}
	if u := AddV3(v, w); u != (V3{5, -3, 9}) {
		t.Fatalf("AddV3:\nhave %v\nwant [5 -3 9]", u)
	}
	if u := SubV3(v, w); u != (V3{-3, 7, -3}) {
		t.Fatalf("SubV3:\nhave %v\nwant [-3 7 -3]", u)
	}
	if u := ScaleV3(2, v); u != (V3{2, 4, 6}) {
		t.Fatalf("ScaleV3:\nhave %v\nwant [2 4 6]", u)
	}
	if d := DotV3(v, w); d != 12 {
		t.Fatalf("DotV3:\nhave %v\nwant 12", d)
	}
	if u := Cross(V3{1, 0, 0}, V3{0, 1, 0}); u != (V3{0, 0, 1}) {
		t.Fatalf("Cross:\nhave %v\nwant [0 0 1]", u)
	}
	if x := LenV3(V3{3, 4, 0}); x != 5 {
		t.Fatalf("LenV3:\nhave %v\nwant 5", x)
	}
	u := NormV3(V3{0, 0, 10})
	if math32.Abs(LenV3(u)-1) > 1e-6 || u[2] != 1 {
		t.Fatalf("NormV3:\nhave %v\nwant [0 0 1]", u)
	}
	if u := LerpV3(V3{0, 0, 0}, V3{2, 4, 6}, 0.5); u != (V3{1, 2, 3}) {
		t.Fatalf("LerpV3:\nhave %v\nwant [1 2 3]", u)
	}
}

func TestM4(t *testing.T) {
	var m, i M4
	i.I()
	m.Mul(&i, &i)
	if m != i {
		t.Fatalf("M4.Mul:\nhave %v\nwant identity", m)
	}
	var x M4
	x.Translate(1, 2, 3)
	v := x.MulV4(V4{0, 0, 0, 1})
	if v != (V4{1, 2, 3, 1}) {
		t.Fatalf("M4.Translate:\nhave %v\nwant [1 2 3 1]", v)
	}
	var y M4
	y.Transpose(&x)
	if y[0][3] != 1 || y[1][3] != 2 || y[2][3] != 3 {
		t.Fatalf("M4.Transpose:\nhave %v", y)
	}
}

func TestPerspective(t *testing.T) {
	var m M4
	m.Perspective(math32.Pi/2, 1, 1, 100)
	// A point on the near plane maps to depth 0.
	v := m.MulV4(V4{0, 0, -1, 1})
	if math32.Abs(v[2]/v[3]) > 1e-6 {
		t.Fatalf("near depth:\nhave %v\nwant 0", v[2]/v[3])
	}
	// A point on the far plane maps to depth 1.
	v = m.MulV4(V4{0, 0, -100, 1})
	if math32.Abs(v[2]/v[3]-1) > 1e-4 {
		t.Fatalf("far depth:\nhave %v\nwant 1", v[2]/v[3])
	}
	// The frustum edge maps to clip x = w.
	v = m.MulV4(V4{10, 0, -10, 1})
	if math32.Abs(v[0]/v[3]-1) > 1e-5 {
		t.Fatalf("edge x:\nhave %v\nwant 1", v[0]/v[3])
	}
}

func TestLookAt(t *testing.T) {
	var m M4
	eye := V3{0, 0, 3}
	m.LookAt(eye, V3{}, V3{0, 1, 0})
	// The eye maps to the view origin.
	v := m.MulV4(V4{eye[0], eye[1], eye[2], 1})
	if LenV3(V3{v[0], v[1], v[2]}) > 1e-6 {
		t.Fatalf("eye:\nhave %v\nwant origin", v)
	}
	// The target sits ahead on the view -z axis.
	v = m.MulV4(V4{0, 0, 0, 1})
	if math32.Abs(v[0]) > 1e-6 || math32.Abs(v[1]) > 1e-6 || math32.Abs(v[2]+3) > 1e-6 {
		t.Fatalf("target:\nhave %v\nwant [0 0 -3 1]", v)
	}
}
