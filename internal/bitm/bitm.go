// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package bitm defines a bitmap type useful for resource management
// (e.g., memory allocation and free list implementations).
package bitm

import (
	"unsafe"
)

// Uint represents the granularity of a bitmap.
type Uint interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Bitm is a growable bitmap with custom granularity.
type Bitm[T Uint] struct {
	m   []T
	rem int
}

// nbit returns the number of bits in T.
func (m *Bitm[T]) nbit() int { return int(unsafe.Sizeof(T(0))) * 8 }

// Len returns the number of bits in the map.
func (m *Bitm[_]) Len() int { return len(m.m) * m.nbit() }

// Rem returns the number of unset bits in the map.
func (m *Bitm[_]) Rem() int { return m.rem }

// Grow resizes the map to contain nplus additional words.
// It returns the index of the first bit of the new range.
func (m *Bitm[T]) Grow(nplus int) int {
	if nplus <= 0 {
		return m.Len()
	}
	i := m.Len()
	var z T
	for j := 0; j < nplus; j++ {
		m.m = append(m.m, z)
	}
	m.rem += nplus * m.nbit()
	return i
}

// Set sets the given bit.
func (m *Bitm[T]) Set(i int) {
	w, b := i/m.nbit(), i%m.nbit()
	if m.m[w]&(1<<b) == 0 {
		m.m[w] |= 1 << b
		m.rem--
	}
}

// Unset clears the given bit.
func (m *Bitm[T]) Unset(i int) {
	w, b := i/m.nbit(), i%m.nbit()
	if m.m[w]&(1<<b) != 0 {
		m.m[w] &^= 1 << b
		m.rem++
	}
}

// IsSet returns whether the given bit is set.
func (m *Bitm[T]) IsSet(i int) bool {
	return m.m[i/m.nbit()]&(1<<(i%m.nbit())) != 0
}

// Clear unsets every bit in the map.
func (m *Bitm[T]) Clear() {
	for i := range m.m {
		m.m[i] = 0
	}
	m.rem = m.Len()
}

// Search locates an unset bit in the map.
// If every bit is set, ok will be false.
func (m *Bitm[T]) Search() (i int, ok bool) {
	if m.rem == 0 {
		return
	}
	for w := range m.m {
		if m.m[w] == ^T(0) {
			continue
		}
		for b := 0; b < m.nbit(); b++ {
			if m.m[w]&(1<<b) == 0 {
				return w*m.nbit() + b, true
			}
		}
	}
	return
}

// SearchRange locates a contiguous range of n unset bits.
// If no such range exists, ok will be false.
func (m *Bitm[T]) SearchRange(n int) (i int, ok bool) {
	if n <= 0 {
		panic("bitm: SearchRange call with n <= 0")
	}
	if m.rem < n {
		return
	}
	var cnt int
	for j := 0; j < m.Len(); j++ {
		if m.IsSet(j) {
			cnt = 0
			continue
		}
		if cnt == 0 {
			i = j
		}
		if cnt++; cnt == n {
			return i, true
		}
	}
	return 0, false
}
