// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
)

// ImageUsage tags a declared image access within a pass.
type ImageUsage int

// Image usages.
const (
	IUSampledFragment ImageUsage = iota
	IUSampledCompute
	IUTransferSrc
	IUTransferDst
	IUColorAttachment
	IUDepthAttachment
	IUComputeWrite
	IUPresent
)

// sync returns the synchronization scope of the usage.
func (u ImageUsage) sync() driver.Sync {
	switch u {
	case IUSampledFragment:
		return driver.SFragmentShading
	case IUSampledCompute, IUComputeWrite:
		return driver.SComputeShading
	case IUTransferSrc, IUTransferDst:
		return driver.SCopy
	case IUColorAttachment:
		return driver.SColorOutput
	case IUDepthAttachment:
		return driver.SDSOutput
	case IUPresent:
		return driver.SNone
	}
	panic(rgPrefix + "undefined ImageUsage constant")
}

// access returns the memory access scope of the usage.
func (u ImageUsage) access() driver.Access {
	switch u {
	case IUSampledFragment, IUSampledCompute:
		return driver.AShaderRead
	case IUTransferSrc:
		return driver.ACopyRead
	case IUTransferDst:
		return driver.ACopyWrite
	case IUColorAttachment:
		return driver.AColorRead | driver.AColorWrite
	case IUDepthAttachment:
		return driver.ADSRead | driver.ADSWrite
	case IUComputeWrite:
		return driver.AShaderRead | driver.AShaderWrite
	case IUPresent:
		return driver.ANone
	}
	panic(rgPrefix + "undefined ImageUsage constant")
}

// layout returns the image layout the usage requires.
func (u ImageUsage) layout() driver.Layout {
	switch u {
	case IUSampledFragment, IUSampledCompute:
		return driver.LShaderRead
	case IUTransferSrc:
		return driver.LCopySrc
	case IUTransferDst:
		return driver.LCopyDst
	case IUColorAttachment:
		return driver.LColorTarget
	case IUDepthAttachment:
		return driver.LDSTarget
	case IUComputeWrite:
		return driver.LShaderStore
	case IUPresent:
		return driver.LPresent
	}
	panic(rgPrefix + "undefined ImageUsage constant")
}

// creation returns the driver.Usage flag a transient image
// must have been created with to serve the usage.
func (u ImageUsage) creation() driver.Usage {
	switch u {
	case IUSampledFragment, IUSampledCompute:
		return driver.UShaderSample
	case IUTransferSrc:
		return driver.UCopySrc
	case IUTransferDst:
		return driver.UCopyDst
	case IUColorAttachment, IUDepthAttachment:
		return driver.URenderTarget
	case IUComputeWrite:
		return driver.UShaderWrite
	case IUPresent:
		return 0
	}
	panic(rgPrefix + "undefined ImageUsage constant")
}

// String implements fmt.Stringer.
func (u ImageUsage) String() string {
	switch u {
	case IUSampledFragment:
		return "SampledFragment"
	case IUSampledCompute:
		return "SampledCompute"
	case IUTransferSrc:
		return "TransferSrc"
	case IUTransferDst:
		return "TransferDst"
	case IUColorAttachment:
		return "ColorAttachment"
	case IUDepthAttachment:
		return "DepthAttachment"
	case IUComputeWrite:
		return "ComputeWrite"
	case IUPresent:
		return "Present"
	}
	return "!rgraph.ImageUsage"
}

// BufUsage tags a declared buffer access within a pass.
type BufUsage int

// Buffer usages.
const (
	BUTransferSrc BufUsage = iota
	BUTransferDst
	BUVertexRead
	BUIndexRead
	BUUniformRead
	BUStorageRead
	BUStorageReadWrite
	BUIndirectArgs
)

// sync returns the synchronization scope of the usage.
func (u BufUsage) sync() driver.Sync {
	switch u {
	case BUTransferSrc, BUTransferDst:
		return driver.SCopy
	case BUVertexRead, BUIndexRead:
		return driver.SVertexInput
	case BUUniformRead:
		return driver.SVertexShading | driver.SFragmentShading | driver.SComputeShading
	case BUStorageRead, BUStorageReadWrite:
		return driver.SComputeShading
	case BUIndirectArgs:
		return driver.SDrawIndirect
	}
	panic(rgPrefix + "undefined BufUsage constant")
}

// access returns the memory access scope of the usage.
func (u BufUsage) access() driver.Access {
	switch u {
	case BUTransferSrc:
		return driver.ACopyRead
	case BUTransferDst:
		return driver.ACopyWrite
	case BUVertexRead:
		return driver.AVertexBufRead
	case BUIndexRead:
		return driver.AIndexBufRead
	case BUUniformRead:
		return driver.AConstRead
	case BUStorageRead:
		return driver.AShaderRead
	case BUStorageReadWrite:
		return driver.AShaderRead | driver.AShaderWrite
	case BUIndirectArgs:
		return driver.AIndirectRead
	}
	panic(rgPrefix + "undefined BufUsage constant")
}

// creation returns the driver.Usage flag a transient buffer
// must have been created with to serve the usage.
func (u BufUsage) creation() driver.Usage {
	switch u {
	case BUTransferSrc:
		return driver.UCopySrc
	case BUTransferDst:
		return driver.UCopyDst
	case BUVertexRead:
		return driver.UVertexData
	case BUIndexRead:
		return driver.UIndexData
	case BUUniformRead:
		return driver.UShaderConst
	case BUStorageRead:
		return driver.UShaderRead
	case BUStorageReadWrite:
		return driver.UShaderRead | driver.UShaderWrite
	case BUIndirectArgs:
		return driver.UIndirectData
	}
	panic(rgPrefix + "undefined BufUsage constant")
}

// String implements fmt.Stringer.
func (u BufUsage) String() string {
	switch u {
	case BUTransferSrc:
		return "TransferSrc"
	case BUTransferDst:
		return "TransferDst"
	case BUVertexRead:
		return "VertexRead"
	case BUIndexRead:
		return "IndexRead"
	case BUUniformRead:
		return "UniformRead"
	case BUStorageRead:
		return "StorageRead"
	case BUStorageReadWrite:
		return "StorageReadWrite"
	case BUIndirectArgs:
		return "IndirectArgs"
	}
	return "!rgraph.BufUsage"
}
