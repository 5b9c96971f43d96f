// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package terrain

import (
	"fmt"
)

// PatchKey addresses one quadtree node: a square region of
// a cube face at a given subdivision level.
// X and Y are in [0, 2^Level).
type PatchKey struct {
	Face  Face
	Level int
	X     int
	Y     int
}

// String implements fmt.Stringer.
func (k PatchKey) String() string {
	return fmt.Sprintf("%v/L%d/%d,%d", k.Face, k.Level, k.X, k.Y)
}

// Parent returns the key one level up.
// The root is its own parent.
func (k PatchKey) Parent() PatchKey {
	if k.Level == 0 {
		return k
	}
	return PatchKey{k.Face, k.Level - 1, k.X / 2, k.Y / 2}
}

// Child returns the i-th child, i in [0,4), ordered
// (0,0), (1,0), (0,1), (1,1).
func (k PatchKey) Child(i int) PatchKey {
	return PatchKey{k.Face, k.Level + 1, k.X*2 + i&1, k.Y*2 + i>>1}
}

// childIndex returns which child of its parent k is.
func (k PatchKey) childIndex() int {
	return k.X&1 | k.Y&1<<1
}

// UVRect returns the face-local parameter rectangle of k.
func (k PatchKey) UVRect() (u0, v0, size float32) {
	size = 1 / float32(int(1)<<k.Level)
	return float32(k.X) * size, float32(k.Y) * size, size
}

// Center returns the face-local center of k.
func (k PatchKey) Center() (u, v float32) {
	u0, v0, size := k.UVRect()
	return u0 + size/2, v0 + size/2
}

// Contains reports whether k covers the descendant key d.
func (k PatchKey) Contains(d PatchKey) bool {
	if k.Face != d.Face || k.Level > d.Level {
		return false
	}
	shift := d.Level - k.Level
	return d.X>>shift == k.X && d.Y>>shift == k.Y
}
