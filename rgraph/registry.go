// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package rgraph implements the frame's render graph: a
// per-frame catalog of GPU resources, pass declarations,
// dependency-ordered compilation with barrier synthesis,
// and pass recording over dynamic rendering.
package rgraph

import (
	"errors"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/internal/ctxt"
)

const rgPrefix = "rgraph: "

// ImageHandle identifies an image record in a Registry.
// The zero value is invalid.
// Handles are stable within one frame only; they must not
// be carried across Reset calls.
type ImageHandle int

// BufHandle identifies a buffer record in a Registry.
// The zero value is invalid.
type BufHandle int

// imageRec is the registry entry of an image.
type imageRec struct {
	name     string
	imported bool
	img      driver.Image
	view     driver.ImageView
	format   driver.PixelFmt
	width    int
	height   int
	layers   int
	levels   int
	// Creation usage; meaningful for transients only.
	usage driver.Usage
	// State at graph-begin, authoritative for the
	// first barrier.
	initLayout driver.Layout
	initSync   driver.Sync
	initAccess driver.Access
	// Pass indices in compiled order; -1 when unused.
	firstUse int
	lastUse  int
}

// bufRec is the registry entry of a buffer.
type bufRec struct {
	name       string
	imported   bool
	buf        driver.Buffer
	size       int64
	usage      driver.Usage
	initSync   driver.Sync
	initAccess driver.Access
	firstUse   int
	lastUse    int
}

// Registry owns the per-frame catalog of image and buffer
// records.
// Imported records reference externally owned GPU objects;
// transient records own their objects for the frame and
// queue them for deferred destruction on Reset.
type Registry struct {
	images  []imageRec
	bufs    []bufRec
	byImage map[driver.Image]ImageHandle
	byBuf   map[driver.Buffer]BufHandle
}

// ImageDesc describes an imported image.
type ImageDesc struct {
	Name   string
	Image  driver.Image
	View   driver.ImageView
	Format driver.PixelFmt
	Width  int
	Height int
	Layers int
	Levels int
	// State of the image at graph-begin.
	// If Layout is not LUndefined and both Sync and
	// Access are zero, the registry conservatively
	// records "all commands + any read/write" so no
	// prior hazard is missed.
	Layout driver.Layout
	Sync   driver.Sync
	Access driver.Access
}

// BufferDesc describes an imported buffer.
type BufferDesc struct {
	Name   string
	Buffer driver.Buffer
	Size   int64
	Sync   driver.Sync
	Access driver.Access
}

// ImportImage interns an externally owned image.
// It is idempotent per driver.Image: importing the same
// image again returns the existing handle, updating the
// record's name and widening its initial state
// conservatively.
func (r *Registry) ImportImage(desc *ImageDesc) ImageHandle {
	if desc.Image == nil {
		panic(rgPrefix + "ImportImage with nil driver.Image")
	}
	if h, ok := r.byImage[desc.Image]; ok {
		rec := r.image(h)
		if desc.Name != "" {
			rec.name = desc.Name
		}
		if desc.Layout != rec.initLayout {
			// Conflicting claims about prior state;
			// assume the worst.
			rec.initSync = driver.SAll
			rec.initAccess = driver.AAnyRead | driver.AAnyWrite
		}
		return h
	}
	sync, access := desc.Sync, desc.Access
	if desc.Layout != driver.LUndefined && sync == driver.SNone && access == driver.ANone {
		sync = driver.SAll
		access = driver.AAnyRead | driver.AAnyWrite
	}
	layers, levels := desc.Layers, desc.Levels
	if layers < 1 {
		layers = 1
	}
	if levels < 1 {
		levels = 1
	}
	r.images = append(r.images, imageRec{
		name:       desc.Name,
		imported:   true,
		img:        desc.Image,
		view:       desc.View,
		format:     desc.Format,
		width:      desc.Width,
		height:     desc.Height,
		layers:     layers,
		levels:     levels,
		initLayout: desc.Layout,
		initSync:   sync,
		initAccess: access,
		firstUse:   -1,
		lastUse:    -1,
	})
	h := ImageHandle(len(r.images))
	if r.byImage == nil {
		r.byImage = make(map[driver.Image]ImageHandle)
	}
	r.byImage[desc.Image] = h
	return h
}

// ImportBuffer interns an externally owned buffer.
// It is idempotent per driver.Buffer.
func (r *Registry) ImportBuffer(desc *BufferDesc) BufHandle {
	if desc.Buffer == nil {
		panic(rgPrefix + "ImportBuffer with nil driver.Buffer")
	}
	if h, ok := r.byBuf[desc.Buffer]; ok {
		if desc.Name != "" {
			r.buffer(h).name = desc.Name
		}
		return h
	}
	sync, access := desc.Sync, desc.Access
	r.bufs = append(r.bufs, bufRec{
		name:       desc.Name,
		imported:   true,
		buf:        desc.Buffer,
		size:       desc.Size,
		initSync:   sync,
		initAccess: access,
		firstUse:   -1,
		lastUse:    -1,
	})
	h := BufHandle(len(r.bufs))
	if r.byBuf == nil {
		r.byBuf = make(map[driver.Buffer]BufHandle)
	}
	r.byBuf[desc.Buffer] = h
	return h
}

// NewTransientImage creates a 2D image whose lifetime is
// the current frame.
// The image and its view are queued for deferred
// destruction when the registry is reset.
func (r *Registry) NewTransientImage(name string, pf driver.PixelFmt, width, height int, usage driver.Usage) (ImageHandle, error) {
	if width < 1 || height < 1 {
		return 0, errors.New(rgPrefix + "invalid transient image size")
	}
	img, err := ctxt.GPU().NewImage(pf, driver.Dim3D{Width: width, Height: height}, 1, 1, 1, usage)
	if err != nil {
		return 0, err
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		img.Destroy()
		return 0, err
	}
	r.images = append(r.images, imageRec{
		name:       name,
		img:        img,
		view:       view,
		format:     pf,
		width:      width,
		height:     height,
		layers:     1,
		levels:     1,
		usage:      usage,
		initLayout: driver.LUndefined,
		firstUse:   -1,
		lastUse:    -1,
	})
	h := ImageHandle(len(r.images))
	if r.byImage == nil {
		r.byImage = make(map[driver.Image]ImageHandle)
	}
	r.byImage[img] = h
	return h, nil
}

// NewTransientBuffer creates a buffer whose lifetime is the
// current frame.
func (r *Registry) NewTransientBuffer(name string, size int64, usage driver.Usage, visible bool) (BufHandle, error) {
	if size < 1 {
		return 0, errors.New(rgPrefix + "invalid transient buffer size")
	}
	buf, err := ctxt.GPU().NewBuffer(size, visible, usage)
	if err != nil {
		return 0, err
	}
	r.bufs = append(r.bufs, bufRec{
		name:     name,
		buf:      buf,
		size:     size,
		usage:    usage,
		firstUse: -1,
		lastUse:  -1,
	})
	h := BufHandle(len(r.bufs))
	if r.byBuf == nil {
		r.byBuf = make(map[driver.Buffer]BufHandle)
	}
	r.byBuf[buf] = h
	return h, nil
}

// FindImage returns the handle interned for the given
// driver.Image, if any.
func (r *Registry) FindImage(img driver.Image) (ImageHandle, bool) {
	h, ok := r.byImage[img]
	return h, ok
}

// FindBuffer returns the handle interned for the given
// driver.Buffer, if any.
func (r *Registry) FindBuffer(buf driver.Buffer) (BufHandle, bool) {
	h, ok := r.byBuf[buf]
	return h, ok
}

// Reset clears all records.
// Transient resources are queued for deferred destruction;
// imported resources are left untouched.
// It is called at the frame boundary.
func (r *Registry) Reset() {
	for i := range r.images {
		if r.images[i].imported {
			continue
		}
		ctxt.DeferDestroy(r.images[i].view)
		ctxt.DeferDestroy(r.images[i].img)
	}
	for i := range r.bufs {
		if r.bufs[i].imported {
			continue
		}
		ctxt.DeferDestroy(r.bufs[i].buf)
	}
	r.images = r.images[:0]
	r.bufs = r.bufs[:0]
	clear(r.byImage)
	clear(r.byBuf)
}

// image returns the record of h.
// It panics on invalid handles.
func (r *Registry) image(h ImageHandle) *imageRec {
	if h < 1 || int(h) > len(r.images) {
		panic(rgPrefix + "invalid ImageHandle")
	}
	return &r.images[h-1]
}

// buffer returns the record of h.
// It panics on invalid handles.
func (r *Registry) buffer(h BufHandle) *bufRec {
	if h < 1 || int(h) > len(r.bufs) {
		panic(rgPrefix + "invalid BufHandle")
	}
	return &r.bufs[h-1]
}

// ImageUse describes where an image is used in the
// compiled order.
// First/Last are -1 when the image is not used by any
// enabled pass.
func (r *Registry) ImageUse(h ImageHandle) (first, last int) {
	rec := r.image(h)
	return rec.firstUse, rec.lastUse
}

// BufferUse describes where a buffer is used in the
// compiled order.
func (r *Registry) BufferUse(h BufHandle) (first, last int) {
	rec := r.buffer(h)
	return rec.firstUse, rec.lastUse
}
