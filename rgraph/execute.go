// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"errors"
	"time"

	"github.com/hydrogendeuteride/QuaternionEngine-sub003/driver"
	"github.com/hydrogendeuteride/QuaternionEngine-sub003/internal/ctxt"
)

// Execute records every enabled pass into cb, in compiled
// order.
// cb must be in the recording state. Barriers synthesized by
// Compile are emitted before each pass, then a pair of
// timestamp queries brackets the pass's commands.
// Passes whose attachments lack a usable view are skipped
// with a warning rather than failing the frame.
func (g *Graph) Execute(cb driver.CmdBuffer) error {
	if !cb.IsRecording() {
		return errors.New(rgPrefix + "Execute with cb not recording")
	}
	g.ensureTimestamps()

	for k, idx := range g.order {
		p := g.passes[idx]
		p.cpuMs = 0
		p.gpuMs = 0
		if g.skipPass(p) {
			continue
		}

		cb.BeginLabel("RG: " + p.name)
		if len(p.transitions) > 0 {
			cb.Transition(p.transitions)
		}
		if len(p.barriers) > 0 {
			cb.Barrier(p.barriers)
		}
		if g.ts != nil {
			cb.WriteTimestamp(driver.SAll, g.ts, 2*k)
		}
		begin := time.Now()

		rendering := len(p.colorAtts) > 0 || p.depthAtt != nil
		if rendering {
			cb.BeginRendering(g.renderingInfo(p))
		}
		if p.record != nil {
			p.record(cb, &Resolved{g})
		}
		if rendering {
			cb.EndRendering()
		}

		p.cpuMs = float64(time.Since(begin)) / float64(time.Millisecond)
		if g.ts != nil {
			cb.WriteTimestamp(driver.SAll, g.ts, 2*k+1)
		}
		cb.EndLabel()
	}
	return nil
}

// skipPass reports whether p cannot be recorded because an
// attachment has no view.
func (g *Graph) skipPass(p *Pass) bool {
	for i := range p.colorAtts {
		if g.reg.image(p.colorAtts[i].Img).view == nil {
			g.warn("pass %q skipped: color attachment has no view", p.name)
			return true
		}
	}
	if p.depthAtt != nil && g.reg.image(p.depthAtt.Img).view == nil {
		g.warn("pass %q skipped: depth attachment has no view", p.name)
		return true
	}
	return false
}

// renderingInfo builds the dynamic rendering description of
// p from its attachment declarations.
// The render area is the componentwise minimum of the
// attachment extents, further bounded by the graph's draw
// extent when one is set.
func (g *Graph) renderingInfo(p *Pass) *driver.RenderingInfo {
	width, height := p.renderW, p.renderH
	if g.drawW > 0 && g.drawW < width {
		width = g.drawW
	}
	if g.drawH > 0 && g.drawH < height {
		height = g.drawH
	}
	info := driver.RenderingInfo{
		Width:  width,
		Height: height,
		Layers: 1,
	}
	for i := range p.colorAtts {
		a := &p.colorAtts[i]
		load := driver.LLoad
		if a.ClearOnLoad {
			load = driver.LClear
		}
		info.Color = append(info.Color, driver.RenderingAtt{
			IView: g.reg.image(a.Img).view,
			Load:  load,
			Store: a.Store,
			Clear: a.Clear,
		})
	}
	if p.depthAtt != nil {
		load := driver.LLoad
		if p.depthAtt.ClearOnLoad {
			load = driver.LClear
		}
		info.DS = &driver.RenderingAtt{
			IView: g.reg.image(p.depthAtt.Img).view,
			Load:  load,
			Store: p.depthAtt.Store,
			Clear: p.depthAtt.Clear,
		}
	}
	return &info
}

// ensureTimestamps sizes the query pool to two queries per
// ordered pass.
// Timing is disabled when the driver lacks timestamp
// queries.
func (g *Graph) ensureTimestamps() {
	if !ctxt.Features().TimestampQuery {
		return
	}
	need := 2 * len(g.order)
	if need == 0 {
		return
	}
	if g.ts != nil && g.ts.Count() >= need {
		g.ts.Reset()
		return
	}
	if g.ts != nil {
		ctxt.DeferDestroy(g.ts)
		g.ts = nil
	}
	ts, err := ctxt.GPU().NewTimestamps(need)
	if err != nil {
		g.warn("timestamp pool creation failed: %v", err)
		return
	}
	g.ts = ts
}

// ResolveTimings reads back the GPU times of the last
// executed frame.
// It must only be called after the frame's command buffers
// complete execution. Pass GPU times become available
// through Pass.GPUMillis.
func (g *Graph) ResolveTimings() error {
	if g.ts == nil {
		return nil
	}
	raw := make([]uint64, 2*len(g.order))
	if err := g.ts.Resolve(0, raw); err != nil {
		return err
	}
	period := ctxt.Limits().TimestampPeriodNs
	for k, idx := range g.order {
		t0, t1 := raw[2*k], raw[2*k+1]
		if t1 <= t0 {
			continue
		}
		g.passes[idx].gpuMs = float64(t1-t0) * period / 1e6
	}
	return nil
}
