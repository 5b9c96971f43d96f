// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package driver

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// Commit commits a batch of command buffers to the GPU
	// for execution.
	// This method sends wk to ch when all commands complete
	// execution, with wk.Err describing the outcome. Command
	// buffers in wk.Work cannot be used for recording until
	// then.
	Commit(wk *WorkItem, ch chan<- *WorkItem) error

	// NewCmdBuffer creates a new command buffer.
	NewCmdBuffer() (CmdBuffer, error)

	// NewShaderCode creates a new shader code.
	NewShaderCode(data []byte) (ShaderCode, error)

	// NewDescHeap creates a new descriptor heap.
	// Descriptor writes to a live heap are allowed
	// (update-after-bind); they must only be issued
	// from the recording thread.
	NewDescHeap(ds []Descriptor) (DescHeap, error)

	// NewPipeline creates a new pipeline.
	// The state parameter must be a pointer to a GraphState or
	// a pointer to a CompState.
	NewPipeline(state any) (Pipeline, error)

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new image.
	NewImage(pf PixelFmt, size Dim3D, layers, levels, samples int, usg Usage) (Image, error)

	// NewSampler creates a new Sampler.
	NewSampler(spln *Sampling) (Sampler, error)

	// NewTimestamps creates a pool of n timestamp queries.
	NewTimestamps(n int) (Timestamps, error)

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits

	// Features returns the optional capabilities that
	// the implementation supports.
	Features() Features
}

// WorkItem wraps one batch of command buffers plus the
// result of its execution.
type WorkItem struct {
	Work []CmdBuffer
	Err  error
	// Custom data; ignored by the driver.
	Custom any
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// committed to the GPU for execution.
// Rendering commands must be recorded between BeginRendering
// and EndRendering calls. Every other command may be recorded
// at any point between Begin and End.
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording.
	// This method must be called before any command
	// is recorded in the command buffer. It needs to
	// be called again if the command buffer is
	// executed or reset.
	Begin() error

	// IsRecording returns whether the command buffer
	// is recording commands (i.e., whether it has a
	// Begin call without a matching End).
	IsRecording() bool

	// BeginRendering begins a dynamic render pass whose
	// render targets are declared by info.
	// It must not be nested.
	BeginRendering(info *RenderingInfo)

	// EndRendering ends the current dynamic render pass.
	EndRendering()

	// SetPipeline sets the pipeline.
	// There is a separate binding point for each
	// type of pipeline.
	SetPipeline(pl Pipeline)

	// SetViewport sets the bounds of the viewport.
	SetViewport(vp Viewport)

	// SetScissor sets the scissor rectangle.
	SetScissor(sciss Scissor)

	// SetVertexBuf sets one or more vertex buffers.
	SetVertexBuf(start int, buf []Buffer, off []int64)

	// SetIndexBuf sets the index buffer.
	// off must be aligned to 4 bytes.
	SetIndexBuf(format IndexFmt, buf Buffer, off int64)

	// SetDescHeapGraph sets a descriptor heap copy
	// for graphics pipelines.
	SetDescHeapGraph(dh DescHeap, cpy int)

	// SetDescHeapComp sets a descriptor heap copy
	// for compute pipelines.
	SetDescHeapComp(dh DescHeap, cpy int)

	// Draw draws primitives.
	// It must only be called during rendering.
	Draw(vertCount, instCount, baseVert, baseInst int)

	// DrawIndexed draws indexed primitives.
	// It must only be called during rendering.
	DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int)

	// Dispatch dispatches compute thread groups.
	// It must not be called during rendering.
	Dispatch(grpCountX, grpCountY, grpCountZ int)

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// CopyImage copies data between images.
	CopyImage(param *ImageCopy)

	// CopyBufToImg copies data from a buffer to
	// an image.
	CopyBufToImg(param *BufImgCopy)

	// CopyImgToBuf copies data from an image to
	// a buffer.
	CopyImgToBuf(param *BufImgCopy)

	// BlitImage copies a region between images with
	// scaling and filtering.
	// Source and destination layouts must be LCopySrc
	// and LCopyDst, respectively.
	BlitImage(param *ImageBlit)

	// Fill fills a buffer range with copies of
	// a byte value.
	// off and size must be aligned to 4 bytes.
	Fill(buf Buffer, off int64, value byte, size int64)

	// Barrier inserts a number of memory barriers
	// in the command buffer.
	Barrier(b []Barrier)

	// Transition inserts a number of image layout
	// transitions in the command buffer.
	Transition(t []Transition)

	// WriteTimestamp writes the GPU clock value to
	// query i of ts when every command preceding it
	// reaches the given synchronization scope.
	WriteTimestamp(sync Sync, ts Timestamps, i int)

	// BeginLabel opens a debug label region.
	// Implementations without debug utilities
	// treat it as a no-op.
	BeginLabel(name string)

	// EndLabel closes the innermost debug label region.
	EndLabel()

	// End ends command recording and prepares the
	// command buffer for execution.
	// New recordings are not allowed until the
	// command buffer is executed or reset.
	// Upon failure, the command buffer is reset.
	End() error

	// Reset discards all recorded commands from the
	// command buffer.
	Reset() error
}

// BufferCopy describes the parameters of a copy command
// that copies data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// ImageCopy describes the parameters of a copy command
// that copies data from one image to another.
type ImageCopy struct {
	From      Image
	FromOff   Off3D
	FromLayer int
	FromLevel int
	To        Image
	ToOff     Off3D
	ToLayer   int
	ToLevel   int
	Size      Dim3D
	Layers    int
}

// BufImgCopy describes the parameters of a copy command
// that copies data between a buffer and an image.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	// Stride specifies the addressing of image data
	// in the buffer. It is given in pixels.
	// Stride[0] refers to the row length and Stride[1]
	// refers to the image height.
	Stride [2]int64
	Img    Image
	ImgOff Off3D
	Layer  int
	Layers int
	Level  int
	Size   Dim3D
	// DepthCopy selects either the depth or stencil
	// aspects to copy. It is only used if Img has a
	// combined depth/stencil format.
	DepthCopy bool
}

// ImageBlit describes the parameters of a blit command.
// The source and destination regions may differ in size,
// in which case the data is scaled using Filter.
type ImageBlit struct {
	From      Image
	FromOff   Off3D
	FromSize  Dim3D
	FromLayer int
	FromLevel int
	To        Image
	ToOff     Off3D
	ToSize    Dim3D
	ToLayer   int
	ToLevel   int
	Layers    int
	Filter    Filter
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SVertexInput Sync = 1 << iota
	SVertexShading
	SFragmentShading
	SComputeShading
	SColorOutput
	SDSOutput
	SDrawIndirect
	SResolve
	SCopy
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AVertexBufRead Access = 1 << iota
	AIndexBufRead
	AConstRead
	AIndirectRead
	AColorRead
	AColorWrite
	ADSRead
	ADSWrite
	ACopyRead
	ACopyWrite
	AShaderRead
	AShaderWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LCommon
	LColorTarget
	LDSTarget
	LDSRead
	LCopySrc
	LCopyDst
	LShaderRead
	LShaderStore
	LPresent
)

// Barrier represents a synchronization barrier.
// If Buf is nil, the barrier applies globally; otherwise
// it applies to the given buffer range.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
	Buf          Buffer
	BufOff       int64
	BufSize      int64
}

// Transition represents a layout transition on a
// specific image subresource.
type Transition struct {
	Barrier

	LayoutBefore Layout
	LayoutAfter  Layout
	Img          Image
	Layer        int
	Layers       int
	Level        int
	Levels       int
}

// LoadOp is the type of an attachment's load operation.
type LoadOp int

// Load operations.
const (
	LDontCare LoadOp = iota
	LClear
	LLoad
)

// StoreOp is the type of an attachment's store operation.
type StoreOp int

// Store operations.
const (
	SDontCare StoreOp = iota
	SStore
)

// ClearValue defines clear values for color or depth/stencil
// aspects of a render target.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// RenderingAtt describes one render target of a dynamic
// render pass.
// The view must be in LColorTarget layout (LDSTarget for
// depth/stencil attachments) when rendering begins.
type RenderingAtt struct {
	IView ImageView
	Load  LoadOp
	Store StoreOp
	Clear ClearValue
}

// RenderingInfo describes the render targets and render
// area of a dynamic render pass.
type RenderingInfo struct {
	Color  []RenderingAtt
	DS     *RenderingAtt
	Width  int
	Height int
	Layers int
}

// ShaderCode is the interface that defines a shader binary
// for execution in a programmable pipeline stage.
type ShaderCode interface {
	Destroyer
}

// ShaderFunc specifies a function within a shader binary.
type ShaderFunc struct {
	Code ShaderCode
	Name string
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SVertex Stage = 1 << iota
	SFragment
	SCompute
)

// DescType is the type of a descriptor.
type DescType int

// Descriptor types.
const (
	// Read/write buffer.
	DBuffer DescType = iota
	// Read/write image.
	DImage
	// Constant buffer.
	DConstant
	// Sampled texture.
	DTexture
	// Texture sampler.
	DSampler
)

// Descriptor describes data for use in shaders.
type Descriptor struct {
	Type   DescType
	Stages Stage
	Nr     int
	Len    int
}

// DescHeap is the interface that defines a set of descriptors
// for use in programmable pipeline stages.
type DescHeap interface {
	Destroyer

	// New creates enough storage for n copies of each
	// descriptor.
	// All copies from a previous call to New are invalidated,
	// unless n is the same as the current Count value, in
	// which case it is a no-op.
	// Calling New(0) frees all storage.
	New(n int) error

	// SetBuffer updates the buffer ranges referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DBuffer or DConstant.
	SetBuffer(cpy, nr, start int, buf []Buffer, off, size []int64)

	// SetImage updates the image views referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DImage or DTexture.
	SetImage(cpy, nr, start int, iv []ImageView)

	// SetSampler updates the samplers referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DSampler.
	SetSampler(cpy, nr, start int, splr []Sampler)

	// Count returns the number of heap copies created
	// by New.
	Count() int
}

// VertexFmt describes the format of a vertex input.
type VertexFmt int

// Vertex formats.
const (
	Int8 VertexFmt = iota
	Int8x2
	Int8x3
	Int8x4
	Int16
	Int16x2
	Int16x3
	Int16x4
	Int32
	Int32x2
	Int32x3
	Int32x4
	Uint8
	Uint8x2
	Uint8x3
	Uint8x4
	Uint16
	Uint16x2
	Uint16x3
	Uint16x4
	Uint32
	Uint32x2
	Uint32x3
	Uint32x4
	Float32
	Float32x2
	Float32x3
	Float32x4
)

// Size returns the size of the vertex format in bytes.
func (f VertexFmt) Size() int {
	switch f {
	case Int8, Uint8:
		return 1
	case Int8x2, Uint8x2, Int16, Uint16:
		return 2
	case Int8x3, Uint8x3:
		return 3
	case Int8x4, Uint8x4, Int16x2, Uint16x2, Int32, Uint32, Float32:
		return 4
	case Int16x3, Uint16x3:
		return 6
	case Int16x4, Uint16x4, Int32x2, Uint32x2, Float32x2:
		return 8
	case Int32x3, Uint32x3, Float32x3:
		return 12
	case Int32x4, Uint32x4, Float32x4:
		return 16
	}
	panic("undefined VertexFmt constant")
}

// VertexIn describes a vertex input.
// Consecutive vertices are fetched Stride bytes apart.
// Each vertex input represents a separate buffer binding,
// interleaved inputs are not supported.
// The meaning of the Nr and Name fields is shader-specific.
type VertexIn struct {
	Format VertexFmt
	Stride int
	Nr     int
	Name   string
}

// Topology is the type of primitive topologies,
// which determines how vertex data is assembled.
type Topology int

// Primitive topologies.
const (
	TPoint Topology = iota
	TLine
	TLnStrip
	TTriangle
	TTriStrip
)

// IndexFmt describes the format of index buffer data.
type IndexFmt int

// Index formats.
const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// Viewport defines the bounds of a viewport.
type Viewport struct {
	X, Y, Width, Height, Znear, Zfar float32
}

// Scissor defines a scissor rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// CullMode is the type of cull modes, which
// determines primitive culling based on triangle
// facing direction.
type CullMode int

// Cull modes.
const (
	CNone CullMode = iota
	CFront
	CBack
)

// FillMode is the type of triangle fill modes, which
// determines the final rasterization of triangles.
type FillMode int

// Triangle fill modes.
const (
	FFill FillMode = iota
	FLines
)

// RasterState defines the rasterization state of a
// graphics pipeline.
type RasterState struct {
	// Winding order is either clockwise or counter-clockwise.
	Clockwise bool
	Cull      CullMode
	Fill      FillMode
	// DepthBias enables depth bias computation.
	DepthBias bool
	BiasValue float32
	BiasSlope float32
	BiasClamp float32
}

// CmpFunc is the type of comparison functions.
type CmpFunc int

// Comparison functions.
const (
	CNever CmpFunc = iota
	CLess
	CEqual
	CLessEqual
	CGreater
	CNotEqual
	CGreaterEqual
	CAlways
)

// DSState defines the depth/stencil state of a
// graphics pipeline.
type DSState struct {
	// DepthTest enables the depth test.
	DepthTest bool
	// DepthWrite enables depth writes.
	DepthWrite bool
	DepthCmp   CmpFunc
}

// GraphState defines the combination of programmable and
// fixed stages of a graphics pipeline.
// Graphics pipelines are created from graphics states.
// Attachment formats are declared upfront; the pipeline
// must only be used with dynamic render passes whose
// targets match these formats.
type GraphState struct {
	VertFunc  ShaderFunc
	FragFunc  ShaderFunc
	Heaps     []DescHeap
	Input     []VertexIn
	Topology  Topology
	Raster    RasterState
	Samples   int
	DS        DSState
	ColorFmts []PixelFmt
	DSFmt     PixelFmt
}

// CompState defines the state of a compute pipeline.
// Compute pipelines are created from compute states.
type CompState struct {
	Func  ShaderFunc
	Heaps []DescHeap
}

// Pipeline is the interface that defines a GPU pipeline.
type Pipeline interface {
	Destroyer
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The resource can be written in shaders.
	UShaderWrite
	// The resource can provide constant data for shaders.
	// Valid only for Buffer.
	UShaderConst
	// The resource can be sampled in shaders.
	// Valid only for Image.
	UShaderSample
	// The resource can provide vertex data for draw calls.
	// Valid only for Buffer.
	UVertexData
	// The resource can provide index data for draw calls.
	// Valid only for Buffer.
	UIndexData
	// The resource can provide indirect draw/dispatch
	// arguments. Valid only for Buffer.
	UIndirectData
	// The resource can be a source of copy commands.
	UCopySrc
	// The resource can be a destination of copy commands.
	UCopyDst
	// The resource can be used as render target.
	// Valid only for Image.
	URenderTarget
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
// The size of the buffer is fixed. When a larger buffer
// is necessary, a new one must be created and the data
// must be copied explicitly.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	// Non-visible memory cannot be accessed by the CPU.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead.
	// The slice is valid for the lifetime of the buffer.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation.
	// This value is immutable.
	Cap() int64

	// DeviceAddress returns the address of the buffer in
	// the GPU address space.
	// This value is immutable.
	DeviceAddress() uint64
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FmtUndefined PixelFmt = iota
	// Color, 8-bit channels.
	RGBA8un
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	RG8un
	RG8sRGB
	R8un
	R8sRGB
	// Color, 16-bit channels.
	RGBA16f
	RG16f
	R16f
	// Color, 32-bit channels.
	RGBA32f
	RG32f
	R32f
	// Depth/Stencil.
	D16un
	D32f
	S8ui
	D24unS8ui
	D32fS8ui
	// Block-compressed (BCn), pre-transcoded.
	BC1un
	BC1sRGB
	BC2un
	BC2sRGB
	BC3un
	BC3sRGB
	BC4un
	BC5un
	BC6Hf
	BC7un
	BC7sRGB
)

// Size returns the size of the pixel format in bytes.
// It returns 0 for block-compressed formats, whose
// granularity is a block rather than a pixel.
func (f PixelFmt) Size() int {
	switch f {
	case R8un, R8sRGB, S8ui:
		return 1
	case RG8un, RG8sRGB, R16f, D16un:
		return 2
	case RGBA8un, RGBA8sRGB, BGRA8un, BGRA8sRGB, RG16f, R32f, D32f, D24unS8ui:
		return 4
	case RGBA16f, RG32f, D32fS8ui:
		return 8
	case RGBA32f:
		return 16
	}
	return 0
}

// HasDepth returns whether f contains a depth aspect.
func (f PixelFmt) HasDepth() bool {
	switch f {
	case D16un, D32f, D24unS8ui, D32fS8ui:
		return true
	}
	return false
}

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// Off3D is a three-dimensional offset.
type Off3D struct {
	X, Y, Z int
}

// Image is the interface that defines a GPU image.
// Direct access to image memory is not provided, so copying
// data from the CPU to an image resource requires the use
// of a staging buffer.
type Image interface {
	Destroyer

	// NewView creates a new image view.
	// Image views represent a typed view of image storage.
	// All views created from a given image must be
	// destroyed before the image itself is destroyed.
	NewView(typ ViewType, layer, layers, level, levels int) (ImageView, error)
}

// ViewType is the type of a resource view.
type ViewType int

// View types.
const (
	IView1D ViewType = iota
	IView2D
	IView3D
	IViewCube
	IView1DArray
	IView2DArray
	IViewCubeArray
	IView2DMS
	IView2DMSArray
)

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer

	// Image returns the image from which the view
	// was created.
	Image() Image
}

// Filter is the type of sampler filters.
type Filter int

// Filters.
const (
	FNearest Filter = iota
	FLinear
	// FNoMipmap forces mip level 0 to be used.
	// It is only valid as the mip filter of a sampler.
	FNoMipmap
)

// AddrMode is the type of sampler address modes.
type AddrMode int

// Address modes.
const (
	AWrap AddrMode = iota
	AMirror
	AClamp
)

// Sampler is the interface that defines an image sampler.
type Sampler interface {
	Destroyer
}

// Sampling describes image sampler state.
type Sampling struct {
	Min      Filter
	Mag      Filter
	Mipmap   Filter
	AddrU    AddrMode
	AddrV    AddrMode
	AddrW    AddrMode
	MaxAniso int
	DoCmp    bool
	Cmp      CmpFunc
	MinLOD   float32
	MaxLOD   float32
}

// Timestamps is the interface that defines a pool of
// timestamp queries.
type Timestamps interface {
	Destroyer

	// Count returns the number of queries in the pool.
	Count() int

	// Resolve reads the raw GPU clock values of queries
	// [first, first+len(dst)) into dst.
	// It must only be called after every command buffer
	// that writes to these queries completes execution.
	// Unwritten queries resolve to 0.
	Resolve(first int, dst []uint64) error

	// Reset invalidates every query in the pool.
	// It must be called before the queries are reused.
	Reset()
}

// Features describes optional capabilities.
// These may vary across drivers and devices.
type Features struct {
	// Cube array image views.
	CubeArray bool
	// Timestamp queries outside render passes.
	TimestampQuery bool
	// Buffer device addresses.
	BufferAddress bool
	// Debug label regions in command buffers.
	DebugLabels bool
}

// Limits describes implementation limits.
// These may vary across drivers and devices.
type Limits struct {
	// Maximum width of 1D images.
	MaxImage1D int
	// Maximum width and height of 2D images.
	MaxImage2D int
	// Maximum width and height of cube images.
	MaxImageCube int
	// Maximum width, height and depth of 3D images.
	MaxImage3D int
	// Maximum number of layers in an image.
	MaxLayers int

	// Maximum number of descriptor heaps in a pipeline.
	MaxDescHeaps int
	// Maximum range of buffer descriptors.
	MaxDBufferRange int64
	// Maximum range of constant descriptors.
	MaxDConstantRange int64

	// Maximum number of color render targets in a
	// dynamic render pass.
	MaxColorTargets int
	// Maximum width/height of render targets.
	MaxRenderSize [2]int
	// Maximum number of layers in a render pass.
	MaxRenderLayers int
	// Maximum number of viewports.
	MaxViewports int

	// Maximum dispatch count.
	MaxDispatch [3]int

	// Nanoseconds per GPU timestamp tick.
	TimestampPeriodNs float64
}
