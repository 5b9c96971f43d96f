// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package bitm

import (
	"testing"
)

func TestGrow(t *testing.T) {
	var m Bitm[uint16]
	if x := m.Len(); x != 0 {
		t.Fatalf("Bitm.Len:\nhave %d\nwant 0", x)
	}
	if x := m.Grow(1); x != 0 {
		t.Fatalf("Bitm.Grow:\nhave %d\nwant 0", x)
	}
	if x := m.Len(); x != 16 {
		t.Fatalf("Bitm.Len:\nhave %d\nwant 16", x)
	}
	if x := m.Grow(2); x != 16 {
		t.Fatalf("Bitm.Grow:\nhave %d\nwant 16", x)
	}
	if x := m.Len(); x != 48 {
		t.Fatalf("Bitm.Len:\nhave %d\nwant 48", x)
	}
	if x := m.Rem(); x != 48 {
		t.Fatalf("Bitm.Rem:\nhave %d\nwant 48", x)
	}
}

func TestSetUnset(t *testing.T) {
	var m Bitm[uint8]
	m.Grow(2)
	for _, i := range [...]int{0, 7, 8, 15} {
		m.Set(i)
		if !m.IsSet(i) {
			t.Fatalf("Bitm.IsSet(%d):\nhave false\nwant true", i)
		}
	}
	if x := m.Rem(); x != 12 {
		t.Fatalf("Bitm.Rem:\nhave %d\nwant 12", x)
	}
	// Setting a set bit must not change Rem.
	m.Set(0)
	if x := m.Rem(); x != 12 {
		t.Fatalf("Bitm.Rem:\nhave %d\nwant 12", x)
	}
	m.Unset(0)
	if m.IsSet(0) {
		t.Fatalf("Bitm.IsSet(0):\nhave true\nwant false")
	}
	if x := m.Rem(); x != 13 {
		t.Fatalf("Bitm.Rem:\nhave %d\nwant 13", x)
	}
	m.Clear()
	if x := m.Rem(); x != 16 {
		t.Fatalf("Bitm.Rem:\nhave %d\nwant 16", x)
	}
}

func TestSearch(t *testing.T) {
	var m Bitm[uint32]
	if _, ok := m.Search(); ok {
		t.Fatal("Bitm.Search:\nhave ok\nwant !ok")
	}
	m.Grow(1)
	for i := 0; i < 32; i++ {
		j, ok := m.Search()
		if !ok || j != i {
			t.Fatalf("Bitm.Search:\nhave %d, %t\nwant %d, true", j, ok, i)
		}
		m.Set(j)
	}
	if _, ok := m.Search(); ok {
		t.Fatal("Bitm.Search:\nhave ok\nwant !ok")
	}
}

func TestSearchRange(t *testing.T) {
	var m Bitm[uint8]
	m.Grow(2)
	m.Set(3)
	m.Set(9)
	i, ok := m.SearchRange(5)
	if !ok || i != 4 {
		t.Fatalf("Bitm.SearchRange:\nhave %d, %t\nwant 4, true", i, ok)
	}
	i, ok = m.SearchRange(6)
	if !ok || i != 10 {
		t.Fatalf("Bitm.SearchRange:\nhave %d, %t\nwant 10, true", i, ok)
	}
	if _, ok = m.SearchRange(7); ok {
		t.Fatal("Bitm.SearchRange:\nhave ok\nwant !ok")
	}
}
