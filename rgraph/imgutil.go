// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
)

// layoutScopes derives a conservative stage/access pair for
// an image known only by its layout.
// It is meant for one-off transitions recorded outside the
// graph, where no finer tracking exists.
func layoutScopes(l driver.Layout) (driver.Sync, driver.Access) {
	switch l {
	case driver.LUndefined, driver.LPresent:
		return driver.SNone, driver.ANone
	case driver.LCopySrc:
		return driver.SCopy, driver.ACopyRead
	case driver.LCopyDst:
		return driver.SCopy, driver.ACopyWrite
	case driver.LShaderRead:
		return driver.SFragmentShading, driver.AShaderRead
	case driver.LShaderStore:
		return driver.SComputeShading, driver.AShaderRead | driver.AShaderWrite
	case driver.LColorTarget:
		return driver.SColorOutput, driver.AColorRead | driver.AColorWrite
	case driver.LDSTarget:
		return driver.SDSOutput, driver.ADSRead | driver.ADSWrite
	}
	return driver.SAll, driver.AAnyRead | driver.AAnyWrite
}

// TransitionImage records a standalone layout transition of
// the given subresource range, with stage/access scopes
// derived from the layouts alone.
// Prefer declared pass accesses; this is for resources whose
// transitions happen outside any pass, such as uploads.
func TransitionImage(cb driver.CmdBuffer, img driver.Image, before, after driver.Layout, layer, layers, level, levels int) {
	sb, ab := layoutScopes(before)
	sa, aa := layoutScopes(after)
	if before == driver.LUndefined {
		ab = driver.ANone
	}
	cb.Transition([]driver.Transition{{
		Barrier: driver.Barrier{
			SyncBefore:   sb,
			SyncAfter:    sa,
			AccessBefore: ab,
			AccessAfter:  aa,
		},
		LayoutBefore: before,
		LayoutAfter:  after,
		Img:          img,
		Layer:        layer,
		Layers:       layers,
		Level:        level,
		Levels:       levels,
	}})
}

// CopyImageToImage records a blit of the whole of src onto
// the whole of dst, scaling if the extents differ.
// src must be in LCopySrc layout and dst in LCopyDst; pass
// declarations of IUTransferSrc/IUTransferDst arrange this.
func CopyImageToImage(cb driver.CmdBuffer, res *Resolved, src, dst ImageHandle) {
	sw, sh := res.ImageExtent(src)
	dw, dh := res.ImageExtent(dst)
	cb.BlitImage(&driver.ImageBlit{
		From:     res.Image(src),
		FromSize: driver.Dim3D{Width: sw, Height: sh, Depth: 1},
		To:       res.Image(dst),
		ToSize:   driver.Dim3D{Width: dw, Height: dh, Depth: 1},
		Layers:   1,
		Filter:   driver.FLinear,
	})
}

// CopyImageToImageLetterboxed records a blit of src onto dst
// preserving src's aspect ratio, centered on dst and scaled
// with the given filter.
// The uncovered region of dst is left untouched.
func CopyImageToImageLetterboxed(cb driver.CmdBuffer, res *Resolved, src, dst ImageHandle, filter driver.Filter) {
	sw, sh := res.ImageExtent(src)
	dw, dh := res.ImageExtent(dst)
	if sw < 1 || sh < 1 || dw < 1 || dh < 1 {
		return
	}
	// Fit by the axis that binds.
	tw := dw
	th := dw * sh / sw
	if th > dh {
		th = dh
		tw = dh * sw / sh
	}
	cb.BlitImage(&driver.ImageBlit{
		From:     res.Image(src),
		FromSize: driver.Dim3D{Width: sw, Height: sh, Depth: 1},
		To:       res.Image(dst),
		ToOff:    driver.Off3D{X: (dw - tw) / 2, Y: (dh - th) / 2},
		ToSize:   driver.Dim3D{Width: tw, Height: th, Depth: 1},
		Layers:   1,
		Filter:   filter,
	})
}

// GenerateMipmaps records a full mip chain generation for a
// 2D image whose levels are in LCopyDst layout, with level 0
// already containing the base data.
// On return, every level is in LShaderRead layout.
func GenerateMipmaps(cb driver.CmdBuffer, img driver.Image, width, height, levels int) {
	if levels < 1 {
		return
	}
	TransitionImage(cb, img, driver.LCopyDst, driver.LCopySrc, 0, 1, 0, 1)
	w, h := width, height
	for i := 1; i < levels; i++ {
		nw, nh := w/2, h/2
		if nw < 1 {
			nw = 1
		}
		if nh < 1 {
			nh = 1
		}
		cb.BlitImage(&driver.ImageBlit{
			From:      img,
			FromSize:  driver.Dim3D{Width: w, Height: h, Depth: 1},
			FromLevel: i - 1,
			To:        img,
			ToSize:    driver.Dim3D{Width: nw, Height: nh, Depth: 1},
			ToLevel:   i,
			Layers:    1,
			Filter:    driver.FLinear,
		})
		TransitionImage(cb, img, driver.LCopyDst, driver.LCopySrc, 0, 1, i, 1)
		w, h = nw, nh
	}
	TransitionImage(cb, img, driver.LCopySrc, driver.LShaderRead, 0, 1, 0, levels)
}
