// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package ktx2

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
)

// makeContainer synthesizes a KTX2 buffer.
// Levels are given in index order; payloads are appended in
// that same order after the aligned data start.
func makeContainer(vkFormat uint32, width, height, layers, faces int, scheme uint32, levelLens []int64) []byte {
	le := binary.LittleEndian
	idxEnd := int64(headerSize + len(levelLens)*24)
	start := align8(idxEnd)
	var total int64
	for _, n := range levelLens {
		total += n
	}
	data := make([]byte, start+total)
	copy(data, identifier[:])
	le.PutUint32(data[12:], vkFormat)
	le.PutUint32(data[20:], uint32(width))
	le.PutUint32(data[24:], uint32(height))
	le.PutUint32(data[32:], uint32(layers))
	le.PutUint32(data[36:], uint32(faces))
	le.PutUint32(data[40:], uint32(len(levelLens)))
	le.PutUint32(data[44:], scheme)
	off := start
	for i, n := range levelLens {
		e := headerSize + i*24
		le.PutUint64(data[e:], uint64(off))
		le.PutUint64(data[e+8:], uint64(n))
		le.PutUint64(data[e+16:], uint64(n))
		off += n
	}
	return data
}

func TestParse(t *testing.T) {
	// BC7 128x128, one level: 32x32 blocks of 16 bytes.
	data := makeContainer(vkFormatBC7Srgb, 128, 128, 1, 1, 0, []int64{32 * 32 * 16})
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed:\n%v", err)
	}
	if f.Format != driver.BC7sRGB {
		t.Fatalf("Format:\nhave %v\nwant %v", f.Format, driver.BC7sRGB)
	}
	if f.Width != 128 || f.Height != 128 {
		t.Fatalf("extent:\nhave %dx%d\nwant 128x128", f.Width, f.Height)
	}
	if n := len(f.Levels); n != 1 {
		t.Fatalf("levels:\nhave %d\nwant 1", n)
	}
	if n := int64(len(f.Data(0))); n != 32*32*16 {
		t.Fatalf("level data:\nhave %d bytes\nwant %d", n, 32*32*16)
	}
}

func TestBadMagic(t *testing.T) {
	data := makeContainer(vkFormatBC7Unorm, 4, 4, 1, 1, 0, []int64{16})
	data[0] = 0
	if _, err := Parse(data); err == nil || !strings.Contains(err.Error(), "bad magic") {
		t.Fatalf("Parse:\nhave %v\nwant bad magic", err)
	}
}

func TestSupercompressionRejected(t *testing.T) {
	data := makeContainer(vkFormatBC7Unorm, 4, 4, 1, 1, 1, []int64{16})
	if _, err := Parse(data); err == nil || !strings.Contains(err.Error(), "supercompression") {
		t.Fatalf("Parse:\nhave %v\nwant supercompression rejection", err)
	}
}

func TestTruncatedLevelIndex(t *testing.T) {
	data := makeContainer(vkFormatBC7Unorm, 4, 4, 1, 1, 0, []int64{16})
	if _, err := Parse(data[:headerSize+8]); err == nil || !strings.Contains(err.Error(), "truncated level index") {
		t.Fatalf("Parse:\nhave %v\nwant truncated level index", err)
	}
}

func TestBlockFootprint(t *testing.T) {
	// One byte short of the BC7 128x128 footprint.
	data := makeContainer(vkFormatBC7Unorm, 128, 128, 1, 1, 0, []int64{32*32*16 - 1})
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "level length smaller than expected footprint") {
		t.Fatalf("Parse:\nhave %v\nwant footprint rejection", err)
	}
}

func TestLevelsBindByDescendingLength(t *testing.T) {
	// Index order deliberately lists the smaller level
	// first; mip 0 must still bind to the larger one.
	data := makeContainer(vkFormatBC1RGBAUnorm, 8, 8, 1, 1, 0, []int64{8, 2 * 2 * 8})
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed:\n%v", err)
	}
	if f.Levels[0].Length != 2*2*8 {
		t.Fatalf("mip 0 length:\nhave %d\nwant %d", f.Levels[0].Length, 2*2*8)
	}
	if f.Levels[0].Width != 8 || f.Levels[1].Width != 4 {
		t.Fatalf("mip extents:\nhave %d, %d\nwant 8, 4", f.Levels[0].Width, f.Levels[1].Width)
	}
}

func TestLoadCube(t *testing.T) {
	// 4x4 BC7 cubemap: 6 faces of one 16-byte block.
	data := makeContainer(vkFormatBC7Unorm, 4, 4, 1, 6, 0, []int64{6 * 16})
	f, regions, err := LoadCube(data)
	if err != nil {
		t.Fatalf("LoadCube failed:\n%v", err)
	}
	if n := len(regions); n != 6 {
		t.Fatalf("regions:\nhave %d\nwant 6", n)
	}
	for i, r := range regions {
		if r.Face != i || r.Length != 16 {
			t.Fatalf("region %d:\nhave face %d len %d\nwant face %d len 16", i, r.Face, r.Length, i)
		}
		if want := f.Levels[0].Off + int64(i)*16; r.Off != want {
			t.Fatalf("region %d offset:\nhave %d\nwant %d", i, r.Off, want)
		}
	}

	data = makeContainer(vkFormatBC7Unorm, 4, 4, 1, 1, 0, []int64{16})
	if _, _, err := LoadCube(data); err == nil || !strings.Contains(err.Error(), "not a cubemap") {
		t.Fatalf("LoadCube:\nhave %v\nwant cubemap rejection", err)
	}
}

func TestDecodeBC4Heightmap(t *testing.T) {
	data := makeContainer(vkFormatBC4Unorm, 4, 4, 1, 1, 0, []int64{8})
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed:\n%v", err)
	}
	// r0 <= r1 palette: slot 7 is the literal 255.
	blk := f.Data(0)
	blk[0], blk[1] = 100, 200
	blk[2] = 7 // pixel (0,0) -> palette slot 7

	out, err := DecodeBC4Heightmap(f, 0)
	if err != nil {
		t.Fatalf("DecodeBC4Heightmap failed:\n%v", err)
	}
	if n := len(out); n != 16 {
		t.Fatalf("samples:\nhave %d\nwant 16", n)
	}
	if out[0] != 255 {
		t.Fatalf("sample (0,0):\nhave %d\nwant 255", out[0])
	}
	for i := 1; i < 16; i++ {
		if out[i] != 100 {
			t.Fatalf("sample %d:\nhave %d\nwant 100", i, out[i])
		}
	}

	f2, _ := Parse(makeContainer(vkFormatBC7Unorm, 4, 4, 1, 1, 0, []int64{16}))
	if _, err := DecodeBC4Heightmap(f2, 0); err == nil || !strings.Contains(err.Error(), "BC4_UNORM") {
		t.Fatalf("DecodeBC4Heightmap:\nhave %v\nwant format rejection", err)
	}
}
