package encoder

import (
	"github.com/lookbusy1344/gba-assembler/parser"
)

// ApplyFixup patches one deferred site now that its expression has a value.
// siteAddr is the absolute address of the site.
func ApplyFixup(buf Buffer, f Fixup, siteAddr uint32, v parser.Value) error {
	if v.Kind == parser.ValUnresolved {
		return parser.Errorf(f.Pos, parser.ErrorUnknownSymbol, "unknown symbol: %s", v.Missing)
	}
	if v.Kind != parser.ValNum {
		return parser.NewError(f.Pos, parser.ErrorUnknownSymbol, "expression never resolved to a number")
	}
	value := v.Uint32()

	switch f.Kind {
	case FixAbs8:
		buf.Patch8(f.Offset, byte(value))

	case FixAbs16:
		if f.BigEndian {
			buf.Patch8(f.Offset, byte(value>>8))
			buf.Patch8(f.Offset+1, byte(value))
		} else {
			buf.Patch16(f.Offset, uint16(value))
		}

	case FixAbs32:
		if f.BigEndian {
			buf.Patch8(f.Offset, byte(value>>24))
			buf.Patch8(f.Offset+1, byte(value>>16))
			buf.Patch8(f.Offset+2, byte(value>>8))
			buf.Patch8(f.Offset+3, byte(value))
		} else {
			buf.Patch32(f.Offset, value)
		}

	case FixARMBranch24:
		off, err := armBranchOffset(value, siteAddr, f.Pos)
		if err != nil {
			return err
		}
		buf.Patch32(f.Offset, buf.Read32(f.Offset)|off)

	case FixARMAdr:
		word := buf.Read32(f.Offset)
		cond := word >> 28
		rd := (word >> 12) & 0xF
		patched, err := armAdrWord(cond, rd, value, siteAddr, f.Pos)
		if err != nil {
			return err
		}
		buf.Patch32(f.Offset, patched)

	case FixThumbCondBr8:
		off, err := thumbBranchOffset(value, siteAddr, 8, f.Pos)
		if err != nil {
			return err
		}
		buf.Patch16(f.Offset, buf.Read16(f.Offset)|uint16(off&0xFF))

	case FixThumbBr11:
		off, err := thumbBranchOffset(value, siteAddr, 11, f.Pos)
		if err != nil {
			return err
		}
		buf.Patch16(f.Offset, buf.Read16(f.Offset)|uint16(off&0x7FF))

	case FixThumbBL:
		hi, lo, err := ThumbBLPair(value, siteAddr, f.Pos)
		if err != nil {
			return err
		}
		buf.Patch16(f.Offset, hi)
		buf.Patch16(f.Offset+2, lo)

	case FixThumbAdr:
		imm, err := thumbAdrOffset(value, siteAddr, f.Pos)
		if err != nil {
			return err
		}
		buf.Patch16(f.Offset, buf.Read16(f.Offset)|uint16(imm))
	}
	return nil
}
