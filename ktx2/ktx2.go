// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package ktx2 implements a minimal reader for KTX2
// containers holding pre-transcoded BCn or plain 8-bit
// data. Supercompressed files are rejected.
package ktx2

import (
	"encoding/binary"
	"errors"
	"os"
	"sort"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/internal/ctxt"
)

const prefix = "ktx2: "

// debugEnv enables a parse-time dump of the header and
// level index to the log.
const debugEnv = "VE_TEX_DEBUG"

var identifier = [12]byte{0xab, 'K', 'T', 'X', ' ', '2', '0', 0xbb, '\r', '\n', 0x1a, '\n'}

const headerSize = 80

// Vulkan format codes stored in the container.
const (
	vkFormatR8Unorm       = 9
	vkFormatR8Srgb        = 15
	vkFormatRG8Unorm      = 16
	vkFormatRG8Srgb       = 22
	vkFormatRGBA8Unorm    = 37
	vkFormatRGBA8Srgb     = 43
	vkFormatBGRA8Unorm    = 44
	vkFormatBGRA8Srgb     = 50
	vkFormatBC1RGBUnorm   = 131
	vkFormatBC1RGBSrgb    = 132
	vkFormatBC1RGBAUnorm  = 133
	vkFormatBC1RGBASrgb   = 134
	vkFormatBC2Unorm      = 135
	vkFormatBC2Srgb       = 136
	vkFormatBC3Unorm      = 137
	vkFormatBC3Srgb       = 138
	vkFormatBC4Unorm      = 139
	vkFormatBC5Unorm      = 141
	vkFormatBC6HUfloat    = 143
	vkFormatBC6HSfloat    = 144
	vkFormatBC7Unorm      = 145
	vkFormatBC7Srgb       = 146
)

// Level is one entry of the container's level index, bound
// to the mip level it stores.
type Level struct {
	Off    int64
	Length int64
	// Extent of the bound mip level.
	Width  int
	Height int
}

// File is a parsed KTX2 container.
// Levels are ordered by mip level, 0 first.
type File struct {
	VkFormat uint32
	// Format is the driver mapping of VkFormat, or
	// FmtUndefined when no mapping exists.
	Format   driver.PixelFmt
	Width    int
	Height   int
	Layers   int
	Faces    int
	Levels   []Level
	data     []byte
	dataOff  int64
}

// Data returns the payload bytes of the given level.
func (f *File) Data(level int) []byte {
	l := &f.Levels[level]
	return f.data[l.Off : l.Off+l.Length]
}

// blockBytes returns the bytes per 4x4 block of a BC
// format, or 0 for non-BC formats.
func blockBytes(vkFormat uint32) int64 {
	switch vkFormat {
	case vkFormatBC1RGBUnorm, vkFormatBC1RGBSrgb, vkFormatBC1RGBAUnorm, vkFormatBC1RGBASrgb, vkFormatBC4Unorm:
		return 8
	case vkFormatBC2Unorm, vkFormatBC2Srgb, vkFormatBC3Unorm, vkFormatBC3Srgb,
		vkFormatBC5Unorm, vkFormatBC6HUfloat, vkFormatBC6HSfloat, vkFormatBC7Unorm, vkFormatBC7Srgb:
		return 16
	}
	return 0
}

// pixelFmt maps a Vulkan format code to the driver format.
func pixelFmt(vkFormat uint32) driver.PixelFmt {
	switch vkFormat {
	case vkFormatR8Unorm:
		return driver.R8un
	case vkFormatR8Srgb:
		return driver.R8sRGB
	case vkFormatRG8Unorm:
		return driver.RG8un
	case vkFormatRG8Srgb:
		return driver.RG8sRGB
	case vkFormatRGBA8Unorm:
		return driver.RGBA8un
	case vkFormatRGBA8Srgb:
		return driver.RGBA8sRGB
	case vkFormatBGRA8Unorm:
		return driver.BGRA8un
	case vkFormatBGRA8Srgb:
		return driver.BGRA8sRGB
	case vkFormatBC1RGBUnorm, vkFormatBC1RGBAUnorm:
		return driver.BC1un
	case vkFormatBC1RGBSrgb, vkFormatBC1RGBASrgb:
		return driver.BC1sRGB
	case vkFormatBC2Unorm:
		return driver.BC2un
	case vkFormatBC2Srgb:
		return driver.BC2sRGB
	case vkFormatBC3Unorm:
		return driver.BC3un
	case vkFormatBC3Srgb:
		return driver.BC3sRGB
	case vkFormatBC4Unorm:
		return driver.BC4un
	case vkFormatBC5Unorm:
		return driver.BC5un
	case vkFormatBC6HUfloat, vkFormatBC6HSfloat:
		return driver.BC6Hf
	case vkFormatBC7Unorm:
		return driver.BC7un
	case vkFormatBC7Srgb:
		return driver.BC7sRGB
	}
	return driver.FmtUndefined
}

// mipExtent returns the extent of mip level l of a base
// extent, minimum one.
func mipExtent(base, l int) int {
	e := base >> l
	if e < 1 {
		e = 1
	}
	return e
}

// align8 rounds up to the next multiple of 8.
func align8(x int64) int64 { return (x + 7) &^ 7 }

// Parse reads a KTX2 container from memory.
// The returned File aliases data; callers must keep it
// alive while levels are consumed.
func Parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, errors.New(prefix + "truncated header")
	}
	for i, b := range identifier {
		if data[i] != b {
			return nil, errors.New(prefix + "bad magic")
		}
	}
	le := binary.LittleEndian
	u32 := func(off int) uint32 { return le.Uint32(data[off:]) }
	u64 := func(off int) uint64 { return le.Uint64(data[off:]) }

	f := File{
		VkFormat: u32(12),
		Width:    int(u32(20)),
		Height:   int(u32(24)),
		Layers:   int(u32(32)),
		Faces:    int(u32(36)),
	}
	f.Format = pixelFmt(f.VkFormat)
	depth := u32(28)
	levelCount := int(u32(40))
	scheme := u32(44)
	dfdOff, dfdLen := u32(48), u32(52)
	kvdOff, kvdLen := u32(56), u32(60)
	sgdOff, sgdLen := u64(64), u64(72)

	switch {
	case scheme != 0:
		return nil, errors.New(prefix + "supercompression not supported")
	case depth > 1:
		return nil, errors.New(prefix + "3D images not supported")
	case f.Width < 1 || f.Height < 1:
		return nil, errors.New(prefix + "invalid extent")
	}
	if levelCount < 1 {
		levelCount = 1
	}
	if f.Layers < 1 {
		f.Layers = 1
	}
	if f.Faces < 1 {
		f.Faces = 1
	}

	idxEnd := int64(headerSize) + int64(levelCount)*24
	if int64(len(data)) < idxEnd {
		return nil, errors.New(prefix + "truncated level index")
	}

	// Level-index entries bind to mips by descending
	// byteLength: the fattest entry is mip 0.
	type rawLevel struct {
		off, length int64
	}
	raw := make([]rawLevel, levelCount)
	for i := 0; i < levelCount; i++ {
		off := headerSize + i*24
		raw[i] = rawLevel{int64(u64(off)), int64(u64(off + 8))}
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].length > raw[j].length })

	dataStart := idxEnd
	if e := int64(dfdOff) + int64(dfdLen); e > dataStart {
		dataStart = e
	}
	if e := int64(kvdOff) + int64(kvdLen); e > dataStart {
		dataStart = e
	}
	if e := int64(sgdOff) + int64(sgdLen); e > dataStart {
		dataStart = e
	}
	dataStart = align8(dataStart)
	f.dataOff = dataStart

	bb := blockBytes(f.VkFormat)
	f.Levels = make([]Level, levelCount)
	for l := 0; l < levelCount; l++ {
		w, h := mipExtent(f.Width, l), mipExtent(f.Height, l)
		if bb > 0 {
			want := int64((w+3)/4) * int64((h+3)/4) * bb * int64(f.Layers) * int64(f.Faces)
			if raw[l].length < want {
				return nil, errors.New(prefix + "level length smaller than expected footprint")
			}
		}
		if raw[l].off+raw[l].length > int64(len(data)) {
			return nil, errors.New(prefix + "level data out of bounds")
		}
		f.Levels[l] = Level{
			Off:    raw[l].off,
			Length: raw[l].length,
			Width:  w,
			Height: h,
		}
	}
	f.data = data

	if os.Getenv(debugEnv) == "1" {
		log := ctxt.Log()
		log.Info(prefix+"header",
			"vkFormat", f.VkFormat,
			"extent", [2]int{f.Width, f.Height},
			"layers", f.Layers,
			"faces", f.Faces,
			"levels", levelCount,
			"dataStart", dataStart)
		for l := range f.Levels {
			log.Info(prefix+"level",
				"mip", l,
				"off", f.Levels[l].Off,
				"len", f.Levels[l].Length,
				"extent", [2]int{f.Levels[l].Width, f.Levels[l].Height})
		}
	}
	return &f, nil
}

// Load2D parses a single-face, at most single-layer 2D
// container.
func Load2D(data []byte) (*File, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	switch {
	case f.Faces != 1:
		return nil, errors.New(prefix + "not a 2D image")
	case f.Layers > 1:
		return nil, errors.New(prefix + "2D arrays not supported")
	case f.Format == driver.FmtUndefined:
		return nil, errors.New(prefix + "no transcoding target for format")
	}
	return f, nil
}
