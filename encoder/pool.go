package encoder

import (
	"github.com/golang/glog"
	"github.com/lookbusy1344/gba-assembler/parser"
)

// PoolRequest is one deferred ldr rd, =expr site waiting for a .pool
type PoolRequest struct {
	SiteOffset int // section offset of the placeholder instruction
	SiteAddr   uint32
	Reg        int
	Cond       uint32
	Expr       parser.Expr
	Ctx        parser.EvalContext // scope at the site
	Pos        parser.Position
	Thumb      bool
}

// convertedSite records an ldr= that was rewritten to mov/mvn. A site is
// converted only once its target value is resolved, and resolved values
// cannot change (labels bind exactly once), so the next flush drops these
// records without re-checking the value or retracting the rewrite.
type convertedSite struct {
	SiteOffset int
	Reg        int
	Cond       uint32
	Expr       parser.Expr
	Value      uint32
}

// Pool queues literal requests for one encoding mode until a .pool directive
// (or end of file) flushes them
type Pool struct {
	Thumb     bool
	queue     []*PoolRequest
	converted []*convertedSite
}

// NewPool creates an empty pool queue
func NewPool(thumb bool) *Pool {
	return &Pool{Thumb: thumb}
}

// Request queues a literal load for the next flush
func (p *Pool) Request(req *PoolRequest) {
	p.queue = append(p.queue, req)
}

// NoteConverted records a site that collapsed to mov/mvn
func (p *Pool) NoteConverted(siteOffset int, reg, cond uint32, expr parser.Expr, value uint32) {
	p.converted = append(p.converted, &convertedSite{
		SiteOffset: siteOffset,
		Reg:        int(reg),
		Cond:       cond,
		Expr:       expr,
		Value:      value,
	})
}

// Pending reports how many requests are queued
func (p *Pool) Pending() int { return len(p.queue) }

// Flush emits pool words for every request whose target is now resolvable and
// back-patches the placeholder instructions. Requests that are still
// unresolved stay queued for end-of-file resolution unless final is set, in
// which case they are fatal. Pool entries are emitted in queue order; equal
// values within one flush share a word.
func (p *Pool) Flush(buf Buffer, errs *parser.ErrorList, final bool) {
	if len(p.queue) == 0 && len(p.converted) == 0 {
		return
	}
	glog.V(1).Infof("pool flush: %d requests, %d converted sites, final=%v",
		len(p.queue), len(p.converted), final)

	var keep []*PoolRequest
	emitted := map[uint32]uint32{} // value -> word address, this flush only

	for _, req := range p.queue {
		v, err := parser.Evaluate(req.Expr, req.Ctx)
		if err != nil {
			errs.AddError(parser.NewError(req.Pos, parser.ErrorEncoding, err.Error()))
			continue
		}
		switch v.Kind {
		case parser.ValNum:
			p.place(buf, req, v.Uint32(), emitted, errs)
		case parser.ValDeferred:
			if final {
				errs.AddError(parser.NewError(req.Pos, parser.ErrorUnknownSymbol,
					"literal pool target never resolved"))
				continue
			}
			keep = append(keep, req)
		case parser.ValUnresolved:
			if final {
				errs.AddError(parser.Errorf(req.Pos, parser.ErrorUnknownSymbol,
					"unknown symbol: %s", v.Missing))
				continue
			}
			keep = append(keep, req)
		default:
			errs.AddError(parser.NewError(req.Pos, parser.ErrorEncoding,
				"literal pool target must be a number"))
		}
	}
	p.queue = keep
	// converted mov/mvn sites are final once the pool is reached
	p.converted = nil
}

// place writes one pool entry (or downgrades the site) and patches the
// placeholder instruction
func (p *Pool) place(buf Buffer, req *PoolRequest, value uint32, emitted map[uint32]uint32, errs *parser.ErrorList) {
	if p.Thumb {
		p.placeThumb(buf, req, value, emitted, errs)
		return
	}

	// a deferred load whose target turned out to be immediate-encodable is
	// downgraded to mov/mvn; the pool word it reserved is left as zero
	if enc, ok := RotatedImmediate(value); ok {
		buf.Patch32(req.SiteOffset, req.Cond<<28|1<<25|13<<21|uint32(req.Reg)<<12|enc)
		buf.Align(4, 0)
		buf.Emit32(0, false)
		return
	}
	if enc, ok := RotatedImmediate(^value); ok {
		buf.Patch32(req.SiteOffset, req.Cond<<28|1<<25|15<<21|uint32(req.Reg)<<12|enc)
		buf.Align(4, 0)
		buf.Emit32(0, false)
		return
	}

	addr, ok := emitted[value]
	if !ok {
		buf.Align(4, 0)
		addr = buf.Here()
		buf.Emit32(value, false)
		emitted[value] = addr
	}
	off := int64(addr) - int64(req.SiteAddr+8)
	u := uint32(1)
	if off < 0 {
		u = 0
		off = -off
	}
	if off > 4095 {
		errs.AddError(parser.Errorf(req.Pos, parser.ErrorPoolTooFar,
			"literal pool entry out of range: %d bytes from load site (max 4095)", off))
		return
	}
	buf.Patch32(req.SiteOffset,
		req.Cond<<28|1<<26|1<<24|u<<23|1<<20|15<<16|uint32(req.Reg)<<12|uint32(off))
}

func (p *Pool) placeThumb(buf Buffer, req *PoolRequest, value uint32, emitted map[uint32]uint32, errs *parser.ErrorList) {
	// a target within pc-relative add range becomes add rd, pc, #imm and
	// needs no pool word
	pcBase := req.SiteAddr &^ 3
	if value >= pcBase && value-pcBase <= 1020 && (value-pcBase)%4 == 0 {
		buf.Patch16(req.SiteOffset, uint16(0xA000|uint32(req.Reg)<<8|(value-pcBase)/4))
		return
	}

	addr, ok := emitted[value]
	if !ok {
		buf.Align(4, 0)
		addr = buf.Here()
		buf.Emit32(value, false)
		emitted[value] = addr
	}
	if addr < pcBase {
		errs.AddError(parser.NewError(req.Pos, parser.ErrorPoolTooFar,
			"literal pool entry is behind the load site"))
		return
	}
	off := addr - pcBase
	if off > 1020 || off%4 != 0 {
		errs.AddError(parser.Errorf(req.Pos, parser.ErrorPoolTooFar,
			"literal pool entry out of range: %d bytes from load site (max 1020)", off))
		return
	}
	buf.Patch16(req.SiteOffset, uint16(0x4800|uint32(req.Reg)<<8|off/4))
}
