// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package texcache implements the streaming texture cache:
// deduplicated requests, asynchronous decoding, budgeted
// uploads with LRU eviction and descriptor patching.
package texcache

import (
	"hash/fnv"
	"math/bits"

	"github.com/chewxy/math32"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
)

const prefix = "texcache: "

// Channels hints at the channel count a texture needs on
// the GPU. ChAuto behaves as ChRGBA.
type Channels int

// Channel hints.
const (
	ChAuto Channels = iota
	ChR
	ChRG
	ChRGBA
)

// srgbSalt differentiates the fingerprints of sRGB and
// linear variants of byte-sourced keys.
const srgbSalt = 0x9e3779b97f4a7c15

// Key identifies a texture source.
// Exactly one of Path and Bytes must be set.
// A zero Hash is computed on first use; callers may fill it
// in to skip the hashing work.
type Key struct {
	Path     string
	Bytes    []byte
	SRGB     bool
	Mipmap   bool
	Channels Channels
	// MipClamp bounds the generated mip chain.
	// Zero means unclamped.
	MipClamp int
	Hash     uint64
}

// fingerprint returns the 64-bit FNV-1a hash of the
// normalized key, computing and caching it if unset.
func (k *Key) fingerprint() uint64 {
	if k.Hash != 0 {
		return k.Hash
	}
	h := fnv.New64a()
	if k.Path != "" {
		h.Write([]byte("PATH:"))
		h.Write([]byte(k.Path))
		if k.SRGB {
			h.Write([]byte("#sRGB"))
		} else {
			h.Write([]byte("#UNORM"))
		}
		k.Hash = h.Sum64()
	} else {
		h.Write(k.Bytes)
		k.Hash = h.Sum64()
		if k.SRGB {
			k.Hash ^= srgbSalt
		}
	}
	return k.Hash
}

// format returns the GPU format implied by the channel hint
// and color space.
func (k *Key) format() driver.PixelFmt {
	switch k.Channels {
	case ChR:
		if k.SRGB {
			return driver.R8sRGB
		}
		return driver.R8un
	case ChRG:
		if k.SRGB {
			return driver.RG8sRGB
		}
		return driver.RG8un
	}
	if k.SRGB {
		return driver.RGBA8sRGB
	}
	return driver.RGBA8un
}

// mipLevels returns the mip chain length for the given base
// extent, honoring the key's clamp.
func (k *Key) mipLevels(width, height int) int {
	if !k.Mipmap {
		return 1
	}
	m := width
	if height > m {
		m = height
	}
	n := bits.Len(uint(m))
	if k.MipClamp > 0 && n > k.MipClamp {
		n = k.MipClamp
	}
	if n < 1 {
		n = 1
	}
	return n
}

// vramCost approximates the GPU memory footprint of an
// uploaded texture.
// A full mip chain converges on 4/3 of the base size; the
// exact factor for L levels is (4/3)(1 - 4^-L).
func vramCost(width, height, levels int, pf driver.PixelFmt) int64 {
	var bpp int64
	switch pf {
	case driver.R8un, driver.R8sRGB:
		bpp = 1
	case driver.RG8un, driver.RG8sRGB:
		bpp = 2
	default:
		bpp = 4
	}
	base := int64(width) * int64(height) * bpp
	if levels <= 1 {
		return base
	}
	f := (4.0 / 3.0) * (1 - math32.Pow(0.25, float32(levels)))
	return int64(float32(base) * f)
}
