// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package null implements a headless driver.
// Commands are recorded into an inspectable log and commits
// complete immediately, which makes the package suitable for
// tests and for running the frame pipeline without a GPU.
package null

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
)

const prefix = "null: "

// Driver implements driver.Driver.
type Driver struct {
	gpu *GPU
}

var tDrv Driver

func init() { driver.Register(&tDrv) }

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	if d.gpu == nil {
		d.gpu = &GPU{drv: d}
	}
	return d.gpu, nil
}

// Name returns the name of the driver.
func (d *Driver) Name() string { return "null" }

// Close deinitializes the driver.
func (d *Driver) Close() { d.gpu = nil }

// GPU implements driver.GPU.
type GPU struct {
	drv  *Driver
	addr atomic.Uint64
	tick atomic.Uint64
}

// Driver returns the driver.Driver that owns the GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Commit completes the batch immediately.
// Timestamp queries written by the batch are assigned
// monotonically increasing clock values at this point.
func (g *GPU) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	if wk == nil {
		return errors.New(prefix + "nil WorkItem")
	}
	for _, cb := range wk.Work {
		c, ok := cb.(*CmdBuffer)
		if !ok {
			return errors.New(prefix + "foreign CmdBuffer")
		}
		if c.recording {
			return errors.New(prefix + "CmdBuffer is recording")
		}
		for _, x := range c.Cmds {
			if w, ok := x.(CmdWriteTimestamp); ok {
				w.TS.(*timestamps).vals[w.Query] = g.tick.Add(1)
			}
		}
	}
	go func() {
		wk.Err = nil
		ch <- wk
	}()
	return nil
}

// NewCmdBuffer creates a new command buffer.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &CmdBuffer{}, nil
}

// NewShaderCode creates a new shader code.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	if len(data) == 0 {
		return nil, errors.New(prefix + "empty shader code")
	}
	return &shaderCode{}, nil
}

// NewDescHeap creates a new descriptor heap.
func (g *GPU) NewDescHeap(ds []Descriptor) (driver.DescHeap, error) {
	d := make([]driver.Descriptor, len(ds))
	copy(d, ds)
	return &DescHeap{ds: d}, nil
}

// Descriptor is an alias kept so callers can construct heaps
// from either package.
type Descriptor = driver.Descriptor

// NewPipeline creates a new pipeline.
func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) {
	switch state.(type) {
	case *driver.GraphState, *driver.CompState:
		return &pipeline{}, nil
	}
	return nil, errors.New(prefix + "invalid pipeline state type")
}

// NewBuffer creates a new buffer backed by host memory.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New(prefix + "invalid buffer size")
	}
	return &Buffer{
		mem:     make([]byte, size),
		visible: visible,
		usage:   usg,
		addr:    g.addr.Add(1) << 16,
	}, nil
}

// NewImage creates a new image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	switch {
	case size.Width < 1 || size.Height < 1:
		return nil, errors.New(prefix + "invalid image size")
	case layers < 1 || levels < 1 || samples < 1:
		return nil, errors.New(prefix + "invalid image param")
	}
	return &Image{PF: pf, Size: size, NLayer: layers, NLevel: levels, Usage: usg}, nil
}

// NewSampler creates a new sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	if spln == nil {
		return nil, errors.New(prefix + "nil Sampling")
	}
	return &sampler{spln: *spln}, nil
}

// NewTimestamps creates a pool of n timestamp queries.
func (g *GPU) NewTimestamps(n int) (driver.Timestamps, error) {
	if n < 1 {
		return nil, errors.New(prefix + "invalid query count")
	}
	return &timestamps{vals: make([]uint64, n)}, nil
}

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits {
	return driver.Limits{
		MaxImage1D:        16384,
		MaxImage2D:        16384,
		MaxImageCube:      16384,
		MaxImage3D:        2048,
		MaxLayers:         2048,
		MaxDescHeaps:      8,
		MaxDBufferRange:   1 << 27,
		MaxDConstantRange: 1 << 16,
		MaxColorTargets:   8,
		MaxRenderSize:     [2]int{16384, 16384},
		MaxRenderLayers:   2048,
		MaxViewports:      16,
		MaxDispatch:       [3]int{65535, 65535, 65535},
		TimestampPeriodNs: 1,
	}
}

// Features returns the optional capabilities.
func (g *GPU) Features() driver.Features {
	return driver.Features{
		CubeArray:      true,
		TimestampQuery: true,
		BufferAddress:  true,
		DebugLabels:    true,
	}
}

// Commands recorded by CmdBuffer.
// Each command is stored as one of the following values.
type (
	CmdBeginRendering struct{ Info driver.RenderingInfo }
	CmdEndRendering   struct{}
	CmdBarrier        struct{ B []driver.Barrier }
	CmdTransition     struct{ T []driver.Transition }
	CmdCopyBuffer     struct{ Param driver.BufferCopy }
	CmdCopyImage      struct{ Param driver.ImageCopy }
	CmdCopyBufToImg   struct{ Param driver.BufImgCopy }
	CmdCopyImgToBuf   struct{ Param driver.BufImgCopy }
	CmdBlitImage      struct{ Param driver.ImageBlit }
	CmdFill           struct {
		Buf       driver.Buffer
		Off, Size int64
		Value     byte
	}
	CmdDraw struct {
		VertCount, InstCount, BaseVert, BaseInst int
	}
	CmdDrawIndexed struct {
		IdxCount, InstCount, BaseIdx, VertOff, BaseInst int
	}
	CmdDispatch struct{ X, Y, Z int }
	CmdSetVertexBuf  struct {
		Start int
		Buf   []driver.Buffer
		Off   []int64
	}
	CmdSetIndexBuf struct {
		Format driver.IndexFmt
		Buf    driver.Buffer
		Off    int64
	}
	CmdSetPipeline    struct{ PL driver.Pipeline }
	CmdSetViewport    struct{ VP driver.Viewport }
	CmdSetScissor     struct{ Sciss driver.Scissor }
	CmdSetDescHeap    struct {
		DH      driver.DescHeap
		Cpy     int
		Compute bool
	}
	CmdWriteTimestamp struct {
		Sync  driver.Sync
		TS    driver.Timestamps
		Query int
	}
	CmdBeginLabel struct{ Name string }
	CmdEndLabel   struct{}
)

// CmdBuffer implements driver.CmdBuffer.
// The recorded commands are exposed through the Cmds field
// so tests can assert on exactly what was recorded.
type CmdBuffer struct {
	Cmds      []any
	recording bool
	rendering bool
}

// Begin prepares the command buffer for recording.
func (c *CmdBuffer) Begin() error {
	if c.recording {
		return errors.New(prefix + "CmdBuffer already recording")
	}
	c.recording = true
	return nil
}

// IsRecording returns whether Begin was called with
// no matching End.
func (c *CmdBuffer) IsRecording() bool { return c.recording }

// BeginRendering begins a dynamic render pass.
func (c *CmdBuffer) BeginRendering(info *driver.RenderingInfo) {
	if c.rendering {
		panic(prefix + "nested BeginRendering")
	}
	c.rendering = true
	c.Cmds = append(c.Cmds, CmdBeginRendering{*info})
}

// EndRendering ends the current dynamic render pass.
func (c *CmdBuffer) EndRendering() {
	if !c.rendering {
		panic(prefix + "EndRendering outside rendering")
	}
	c.rendering = false
	c.Cmds = append(c.Cmds, CmdEndRendering{})
}

func (c *CmdBuffer) SetPipeline(pl driver.Pipeline) {
	c.Cmds = append(c.Cmds, CmdSetPipeline{pl})
}

func (c *CmdBuffer) SetViewport(vp driver.Viewport) {
	c.Cmds = append(c.Cmds, CmdSetViewport{vp})
}

func (c *CmdBuffer) SetScissor(sciss driver.Scissor) {
	c.Cmds = append(c.Cmds, CmdSetScissor{sciss})
}

func (c *CmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	c.Cmds = append(c.Cmds, CmdSetVertexBuf{start, buf, off})
}

func (c *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	c.Cmds = append(c.Cmds, CmdSetIndexBuf{format, buf, off})
}

func (c *CmdBuffer) SetDescHeapGraph(dh driver.DescHeap, cpy int) {
	c.Cmds = append(c.Cmds, CmdSetDescHeap{dh, cpy, false})
}

func (c *CmdBuffer) SetDescHeapComp(dh driver.DescHeap, cpy int) {
	c.Cmds = append(c.Cmds, CmdSetDescHeap{dh, cpy, true})
}

func (c *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	c.Cmds = append(c.Cmds, CmdDraw{vertCount, instCount, baseVert, baseInst})
}

func (c *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	c.Cmds = append(c.Cmds, CmdDrawIndexed{idxCount, instCount, baseIdx, vertOff, baseInst})
}

func (c *CmdBuffer) Dispatch(x, y, z int) {
	c.Cmds = append(c.Cmds, CmdDispatch{x, y, z})
}

func (c *CmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	c.Cmds = append(c.Cmds, CmdCopyBuffer{*param})
	from, okF := param.From.(*Buffer)
	to, okT := param.To.(*Buffer)
	if okF && okT {
		copy(to.mem[param.ToOff:param.ToOff+param.Size], from.mem[param.FromOff:])
	}
}

func (c *CmdBuffer) CopyImage(param *driver.ImageCopy) {
	c.Cmds = append(c.Cmds, CmdCopyImage{*param})
}

func (c *CmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	c.Cmds = append(c.Cmds, CmdCopyBufToImg{*param})
}

func (c *CmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	c.Cmds = append(c.Cmds, CmdCopyImgToBuf{*param})
}

func (c *CmdBuffer) BlitImage(param *driver.ImageBlit) {
	c.Cmds = append(c.Cmds, CmdBlitImage{*param})
}

func (c *CmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	c.Cmds = append(c.Cmds, CmdFill{buf, off, size, value})
	if b, ok := buf.(*Buffer); ok {
		for i := off; i < off+size; i++ {
			b.mem[i] = value
		}
	}
}

func (c *CmdBuffer) Barrier(b []driver.Barrier) {
	x := make([]driver.Barrier, len(b))
	copy(x, b)
	c.Cmds = append(c.Cmds, CmdBarrier{x})
}

func (c *CmdBuffer) Transition(t []driver.Transition) {
	x := make([]driver.Transition, len(t))
	copy(x, t)
	c.Cmds = append(c.Cmds, CmdTransition{x})
}

func (c *CmdBuffer) WriteTimestamp(sync driver.Sync, ts driver.Timestamps, i int) {
	c.Cmds = append(c.Cmds, CmdWriteTimestamp{sync, ts, i})
}

func (c *CmdBuffer) BeginLabel(name string) {
	c.Cmds = append(c.Cmds, CmdBeginLabel{name})
}

func (c *CmdBuffer) EndLabel() {
	c.Cmds = append(c.Cmds, CmdEndLabel{})
}

// End ends command recording.
func (c *CmdBuffer) End() error {
	if !c.recording {
		return errors.New(prefix + "CmdBuffer not recording")
	}
	if c.rendering {
		c.recording = false
		c.Cmds = c.Cmds[:0]
		return errors.New(prefix + "End called during rendering")
	}
	c.recording = false
	return nil
}

// Reset discards all recorded commands.
func (c *CmdBuffer) Reset() error {
	c.Cmds = c.Cmds[:0]
	c.recording = false
	c.rendering = false
	return nil
}

// Destroy invalidates the command buffer.
func (c *CmdBuffer) Destroy() { *c = CmdBuffer{} }

// Buffer implements driver.Buffer with host memory.
type Buffer struct {
	mem     []byte
	visible bool
	usage   driver.Usage
	addr    uint64
}

func (b *Buffer) Visible() bool { return b.visible }

func (b *Buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.mem
}

func (b *Buffer) Cap() int64 { return int64(len(b.mem)) }

func (b *Buffer) DeviceAddress() uint64 { return b.addr }

func (b *Buffer) Destroy() { *b = Buffer{} }

// Image implements driver.Image.
type Image struct {
	PF     driver.PixelFmt
	Size   driver.Dim3D
	NLayer int
	NLevel int
	Usage  driver.Usage
	views  int
}

// NewView creates a new image view.
func (m *Image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	switch {
	case layer < 0 || layers < 1 || layer+layers > m.NLayer:
		return nil, errors.New(prefix + "invalid view layer range")
	case level < 0 || levels < 1 || level+levels > m.NLevel:
		return nil, errors.New(prefix + "invalid view level range")
	}
	m.views++
	return &ImageView{img: m, Typ: typ, Layer: layer, Layers: layers, Level: level, Levels: levels}, nil
}

func (m *Image) Destroy() {
	if m.views > 0 {
		panic(prefix + "Image destroyed before its views")
	}
	*m = Image{}
}

// ImageView implements driver.ImageView.
type ImageView struct {
	img    *Image
	Typ    driver.ViewType
	Layer  int
	Layers int
	Level  int
	Levels int
}

// Image returns the image from which the view was created.
func (v *ImageView) Image() driver.Image { return v.img }

func (v *ImageView) Destroy() {
	if v.img != nil {
		v.img.views--
	}
	*v = ImageView{}
}

// DescHeap implements driver.DescHeap.
// The latest writes are retained per (copy, descriptor,
// element) so tests can observe descriptor patching.
type DescHeap struct {
	ds  []driver.Descriptor
	n   int
	mu  sync.Mutex
	img map[[3]int]driver.ImageView
	spl map[[3]int]driver.Sampler
	buf map[[3]int]driver.Buffer
}

func (h *DescHeap) New(n int) error {
	if n < 0 {
		return errors.New(prefix + "invalid heap copy count")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.n = n
	h.img = make(map[[3]int]driver.ImageView)
	h.spl = make(map[[3]int]driver.Sampler)
	h.buf = make(map[[3]int]driver.Buffer)
	return nil
}

func (h *DescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range buf {
		h.buf[[3]int{cpy, nr, start + i}] = buf[i]
	}
}

func (h *DescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range iv {
		h.img[[3]int{cpy, nr, start + i}] = iv[i]
	}
}

func (h *DescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range splr {
		h.spl[[3]int{cpy, nr, start + i}] = splr[i]
	}
}

func (h *DescHeap) Count() int { return h.n }

// Image returns the view last written to the given slot,
// or nil.
func (h *DescHeap) Image(cpy, nr, i int) driver.ImageView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.img[[3]int{cpy, nr, i}]
}

func (h *DescHeap) Destroy() { *h = DescHeap{} }

type sampler struct{ spln driver.Sampling }

func (s *sampler) Destroy() { *s = sampler{} }

type shaderCode struct{}

func (*shaderCode) Destroy() {}

type pipeline struct{}

func (*pipeline) Destroy() {}

type timestamps struct{ vals []uint64 }

func (t *timestamps) Count() int { return len(t.vals) }

func (t *timestamps) Resolve(first int, dst []uint64) error {
	if first < 0 || first+len(dst) > len(t.vals) {
		return errors.New(prefix + "query range out of bounds")
	}
	copy(dst, t.vals[first:])
	return nil
}

func (t *timestamps) Reset() {
	for i := range t.vals {
		t.vals[i] = 0
	}
}

func (t *timestamps) Destroy() { *t = timestamps{} }
