// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package ktx2

import (
	"errors"
)

// DecodeBC4Heightmap reconstructs the 8-bit samples of a
// BC4_UNORM image into a row-major R8 buffer.
// It is meant for CPU-side height sampling of terrain
// heightmaps; the GPU consumes the blocks directly.
func DecodeBC4Heightmap(f *File, level int) ([]byte, error) {
	if f.VkFormat != vkFormatBC4Unorm {
		return nil, errors.New(prefix + "heightmap is not BC4_UNORM")
	}
	if level < 0 || level >= len(f.Levels) {
		return nil, errors.New(prefix + "invalid level")
	}
	lv := &f.Levels[level]
	blocks := f.Data(level)
	out := make([]byte, lv.Width*lv.Height)
	bw, bh := (lv.Width+3)/4, (lv.Height+3)/4
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			decodeBC4Block(blocks[(by*bw+bx)*8:], out, lv.Width, lv.Height, bx*4, by*4)
		}
	}
	return out, nil
}

// decodeBC4Block expands one 8-byte block into dst at pixel
// position (px, py), clipping at the image border.
func decodeBC4Block(blk, dst []byte, width, height, px, py int) {
	r0, r1 := blk[0], blk[1]
	var pal [8]byte
	pal[0], pal[1] = r0, r1
	if r0 > r1 {
		for i := 1; i < 7; i++ {
			pal[i+1] = byte(((7-i)*int(r0) + i*int(r1)) / 7)
		}
	} else {
		for i := 1; i < 5; i++ {
			pal[i+1] = byte(((5-i)*int(r0) + i*int(r1)) / 5)
		}
		pal[6] = 0
		pal[7] = 255
	}
	// 16 3-bit indices packed little-endian in 6 bytes.
	var bits uint64
	for i := 0; i < 6; i++ {
		bits |= uint64(blk[2+i]) << (8 * i)
	}
	for i := 0; i < 16; i++ {
		x, y := px+i%4, py+i/4
		if x >= width || y >= height {
			continue
		}
		dst[y*width+x] = pal[bits>>(3*i)&7]
	}
}
