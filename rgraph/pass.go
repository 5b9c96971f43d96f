// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
)

// PassType distinguishes the kind of work a pass records.
type PassType int

// Pass types.
const (
	PassGraphics PassType = iota
	PassCompute
	PassTransfer
)

// String implements fmt.Stringer.
func (t PassType) String() string {
	switch t {
	case PassGraphics:
		return "Graphics"
	case PassCompute:
		return "Compute"
	case PassTransfer:
		return "Transfer"
	}
	return "!rgraph.PassType"
}

// RecordFunc records the commands of a pass.
// It runs on the record thread with an open command buffer.
// If the pass declared attachments, a dynamic render pass
// is active for the duration of the call.
type RecordFunc func(cb driver.CmdBuffer, res *Resolved)

// ColorAtt describes one color attachment of a pass.
type ColorAtt struct {
	Img         ImageHandle
	ClearOnLoad bool
	Clear       driver.ClearValue
	Store       driver.StoreOp
}

// imageAccess pairs an image handle with a usage tag.
type imageAccess struct {
	h ImageHandle
	u ImageUsage
}

// bufAccess pairs a buffer handle with a usage tag.
type bufAccess struct {
	h BufHandle
	u BufUsage
}

// Pass is one node of the render graph.
type Pass struct {
	name    string
	typ     PassType
	enabled bool

	imgReads  []imageAccess
	imgWrites []imageAccess
	bufReads  []bufAccess
	bufWrites []bufAccess

	colorAtts []ColorAtt
	depthAtt  *ColorAtt

	record RecordFunc

	// Synthesized by Compile.
	transitions []driver.Transition
	barriers    []driver.Barrier
	renderW     int
	renderH     int

	cpuMs float64
	gpuMs float64
}

// Name returns the pass name.
func (p *Pass) Name() string { return p.name }

// Type returns the pass type.
func (p *Pass) Type() PassType { return p.typ }

// Enabled returns whether the pass participates in
// compilation and execution.
func (p *Pass) Enabled() bool { return p.enabled }

// Transitions returns the image barriers synthesized for
// the pass by the last Compile call.
// The slice must not be modified.
func (p *Pass) Transitions() []driver.Transition { return p.transitions }

// Barriers returns the buffer barriers synthesized for the
// pass by the last Compile call.
// The slice must not be modified.
func (p *Pass) Barriers() []driver.Barrier { return p.barriers }

// CPUMillis returns the time spent recording the pass in
// the last Execute call.
func (p *Pass) CPUMillis() float64 { return p.cpuMs }

// GPUMillis returns the pass's GPU time resolved by the
// last ResolveTimings call.
func (p *Pass) GPUMillis() float64 { return p.gpuMs }

// PassBuilder collects the declarations of one pass.
// Every resource a pass touches during recording must be
// declared through the builder; undeclared access is a
// correctness defect that barrier synthesis cannot see.
type PassBuilder struct {
	g *Graph
	p *Pass
}

// Read declares that the pass reads img as u.
func (b *PassBuilder) Read(img ImageHandle, u ImageUsage) *PassBuilder {
	b.g.reg.image(img)
	b.p.imgReads = append(b.p.imgReads, imageAccess{img, u})
	return b
}

// Write declares that the pass writes img as u.
func (b *PassBuilder) Write(img ImageHandle, u ImageUsage) *PassBuilder {
	b.g.reg.image(img)
	b.p.imgWrites = append(b.p.imgWrites, imageAccess{img, u})
	return b
}

// ReadBuf declares that the pass reads buf as u.
func (b *PassBuilder) ReadBuf(buf BufHandle, u BufUsage) *PassBuilder {
	b.g.reg.buffer(buf)
	b.p.bufReads = append(b.p.bufReads, bufAccess{buf, u})
	return b
}

// WriteBuf declares that the pass writes buf as u.
func (b *PassBuilder) WriteBuf(buf BufHandle, u BufUsage) *PassBuilder {
	b.g.reg.buffer(buf)
	b.p.bufWrites = append(b.p.bufWrites, bufAccess{buf, u})
	return b
}

// ReadBufRaw declares a read of an external buffer,
// importing it first if the registry has not seen it.
func (b *PassBuilder) ReadBufRaw(buf driver.Buffer, u BufUsage, size int64, name string) *PassBuilder {
	h, ok := b.g.reg.FindBuffer(buf)
	if !ok {
		h = b.g.reg.ImportBuffer(&BufferDesc{Name: name, Buffer: buf, Size: size})
	}
	return b.ReadBuf(h, u)
}

// WriteBufRaw declares a write of an external buffer,
// importing it first if the registry has not seen it.
func (b *PassBuilder) WriteBufRaw(buf driver.Buffer, u BufUsage, size int64, name string) *PassBuilder {
	h, ok := b.g.reg.FindBuffer(buf)
	if !ok {
		h = b.g.reg.ImportBuffer(&BufferDesc{Name: name, Buffer: buf, Size: size})
	}
	return b.WriteBuf(h, u)
}

// WriteColor appends a color attachment and declares the
// corresponding ColorAttachment write.
func (b *PassBuilder) WriteColor(img ImageHandle, clearOnLoad bool, clear [4]float32) *PassBuilder {
	b.p.colorAtts = append(b.p.colorAtts, ColorAtt{
		Img:         img,
		ClearOnLoad: clearOnLoad,
		Clear:       driver.ClearValue{Color: clear},
		Store:       driver.SStore,
	})
	return b.Write(img, IUColorAttachment)
}

// WriteDepth sets the depth attachment and declares the
// corresponding DepthAttachment write.
// A pass has at most one depth attachment; later calls
// replace earlier ones.
func (b *PassBuilder) WriteDepth(img ImageHandle, clearOnLoad bool, clear float32) *PassBuilder {
	b.p.depthAtt = &ColorAtt{
		Img:         img,
		ClearOnLoad: clearOnLoad,
		Clear:       driver.ClearValue{Depth: clear},
		Store:       driver.SStore,
	}
	return b.Write(img, IUDepthAttachment)
}

// Record sets the pass's record callback.
func (b *PassBuilder) Record(fn RecordFunc) *PassBuilder {
	b.p.record = fn
	return b
}

// Disable excludes the pass from compilation and execution.
func (b *PassBuilder) Disable() *PassBuilder {
	b.p.enabled = false
	return b
}

// Pass returns the pass under construction.
func (b *PassBuilder) Pass() *Pass { return b.p }
