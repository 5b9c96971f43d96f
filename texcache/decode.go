// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package texcache

import (
	"bytes"
	"errors"
	"image"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	// Formats accepted by the default decoder.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeFunc turns raw file bytes into an image.
// It runs on a decode worker, never on the record thread.
type DecodeFunc func(data []byte) (image.Image, error)

// defaultDecode decodes through the registered stdlib and
// x/image formats.
func defaultDecode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// decodeReq is one unit of work for the decode pool.
type decodeReq struct {
	h      Handle
	path   string
	data   []byte
	maxDim int
	decode DecodeFunc
}

// decoded is the result of one decode, pushed to the ready
// queue for the record thread to drain.
type decoded struct {
	h      Handle
	pix    []byte
	width  int
	height int
	err    error
}

// decodePool is a fixed set of worker goroutines consuming
// a request queue and producing a FIFO ready queue.
type decodePool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []decodeReq
	running atomic.Bool

	readyMu sync.Mutex
	ready   []decoded

	wg sync.WaitGroup
}

// maxDecodeWorkers bounds the pool size.
const maxDecodeWorkers = 4

func newDecodePool(workers int) *decodePool {
	if workers < 1 || workers > maxDecodeWorkers {
		workers = maxDecodeWorkers
	}
	p := &decodePool{}
	p.cond = sync.NewCond(&p.mu)
	p.running.Store(true)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// enqueue hands a request to the pool.
func (p *decodePool) enqueue(req decodeReq) {
	p.mu.Lock()
	p.queue = append(p.queue, req)
	p.mu.Unlock()
	p.cond.Signal()
}

// drain removes and returns every completed decode, oldest
// first.
func (p *decodePool) drain() []decoded {
	p.readyMu.Lock()
	defer p.readyMu.Unlock()
	d := p.ready
	p.ready = nil
	return d
}

// pushBack returns results to the head of the ready queue so
// a later pump sees them first.
func (p *decodePool) pushBack(d []decoded) {
	p.readyMu.Lock()
	defer p.readyMu.Unlock()
	p.ready = append(d, p.ready...)
}

// shutdown stops the workers and discards pending requests.
func (p *decodePool) shutdown() {
	p.mu.Lock()
	p.running.Store(false)
	p.queue = nil
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *decodePool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && p.running.Load() {
			p.cond.Wait()
		}
		if !p.running.Load() {
			p.mu.Unlock()
			return
		}
		req := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		d := runDecode(&req)
		p.readyMu.Lock()
		p.ready = append(p.ready, d)
		p.readyMu.Unlock()
	}
}

// runDecode produces RGBA8 pixels for one request, halving
// until both sides fit the configured upload dimension.
func runDecode(req *decodeReq) decoded {
	data := req.data
	if req.path != "" {
		var err error
		data, err = os.ReadFile(req.path)
		if err != nil {
			return decoded{h: req.h, err: err}
		}
	}
	if len(data) == 0 {
		return decoded{h: req.h, err: errors.New(prefix + "empty texture source")}
	}
	fn := req.decode
	if fn == nil {
		fn = defaultDecode
	}
	img, err := fn(data)
	if err != nil {
		return decoded{h: req.h, err: err}
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	for req.maxDim > 0 && (rgba.Rect.Dx() > req.maxDim || rgba.Rect.Dy() > req.maxDim) {
		rgba = halve(rgba)
	}
	return decoded{
		h:      req.h,
		pix:    rgba.Pix,
		width:  rgba.Rect.Dx(),
		height: rgba.Rect.Dy(),
	}
}

// halve nearest-neighbor downsamples to half size, minimum
// one pixel per side.
func halve(src *image.RGBA) *image.RGBA {
	w, h := src.Rect.Dx()/2, src.Rect.Dy()/2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
