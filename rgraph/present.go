// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
)

// AddPresentChain appends the standard end-of-frame passes:
// a transfer pass that blits srcDraw into dstSwapchain,
// then any passes added by mid, then a barrier-only pass
// that moves dstSwapchain to the present layout.
// mid may be nil.
func (g *Graph) AddPresentChain(srcDraw, dstSwapchain ImageHandle, mid func(*Graph)) {
	g.AddPass("CopyToSwapchain", PassTransfer).
		Read(srcDraw, IUTransferSrc).
		Write(dstSwapchain, IUTransferDst).
		Record(func(cb driver.CmdBuffer, res *Resolved) {
			CopyImageToImage(cb, res, srcDraw, dstSwapchain)
		})

	if mid != nil {
		mid(g)
	}

	// Layout transition only; no commands recorded.
	g.AddPass("PreparePresent", PassTransfer).
		Write(dstSwapchain, IUPresent)
}
