// Package dis decodes ARM and Thumb instruction words back to mnemonic text.
// It renders the common GBA instruction set; anything it cannot name comes
// back as a raw data directive so round-tripping stays possible.
package dis

import (
	"fmt"
)

var condNames = [16]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "", "nv",
}

var dataOpNames = [16]string{
	"and", "eor", "sub", "rsb", "add", "adc", "sbc", "rsc",
	"tst", "teq", "cmp", "cmn", "orr", "mov", "bic", "mvn",
}

var regNames = [16]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "ip", "sp", "lr", "pc",
}

func cond(word uint32) string {
	c := condNames[word>>28]
	if c == "" {
		return ""
	}
	return "." + c
}

// ARM renders one 32-bit instruction word at the given address
func ARM(word, addr uint32) string {
	switch {
	case word&0x0FFFFFF0 == 0x012FFF10:
		return fmt.Sprintf("bx%s %s", cond(word), regNames[word&0xF])
	case word&0x0E000000 == 0x0A000000:
		return disARMBranch(word, addr)
	case word&0x0F000000 == 0x0F000000:
		return fmt.Sprintf("swi%s 0x%X", cond(word), word&0xFFFFFF)
	case word&0x0FC000F0 == 0x00000090:
		return disARMMultiply(word)
	case word&0x0E000090 == 0x00000090 && word&0x60 != 0:
		return disARMMisc(word)
	case word&0x0C000000 == 0x04000000:
		return disARMMem(word)
	case word&0x0E000000 == 0x08000000:
		return disARMBlock(word)
	case word&0x0C000000 == 0x00000000:
		return disARMData(word)
	}
	return fmt.Sprintf(".i32 0x%08X", word)
}

func disARMBranch(word, addr uint32) string {
	mn := "b"
	if word&(1<<24) != 0 {
		mn = "bl"
	}
	off := int32(word<<8) >> 6 // sign-extend 24-bit word offset
	target := addr + 8 + uint32(off)
	return fmt.Sprintf("%s%s 0x%08X", mn, cond(word), target)
}

func disARMMultiply(word uint32) string {
	s := ""
	if word&(1<<20) != 0 {
		s = ".s"
	}
	rd := regNames[(word>>16)&0xF]
	rn := regNames[(word>>12)&0xF]
	rs := regNames[(word>>8)&0xF]
	rm := regNames[word&0xF]
	if word&(1<<23) != 0 {
		names := [4]string{"umull", "umlal", "smull", "smlal"}
		idx := (word >> 21) & 3
		return fmt.Sprintf("%s%s%s %s, %s, %s, %s", names[idx], cond(word), s, rn, rd, rm, rs)
	}
	if word&(1<<21) != 0 {
		return fmt.Sprintf("mla%s%s %s, %s, %s, %s", cond(word), s, rd, rm, rs, rn)
	}
	return fmt.Sprintf("mul%s%s %s, %s, %s", cond(word), s, rd, rm, rs)
}

func disARMData(word uint32) string {
	op := (word >> 21) & 0xF
	s := ""
	if word&(1<<20) != 0 && !(op >= 8 && op <= 11) {
		s = ".s"
	}
	rd := regNames[(word>>12)&0xF]
	rn := regNames[(word>>16)&0xF]
	op2 := disOperand2(word)
	name := dataOpNames[op] + cond(word) + s
	switch {
	case op == 13 || op == 15: // mov, mvn
		return fmt.Sprintf("%s %s, %s", name, rd, op2)
	case op >= 8 && op <= 11: // tst, teq, cmp, cmn
		return fmt.Sprintf("%s %s, %s", name, rn, op2)
	default:
		return fmt.Sprintf("%s %s, %s, %s", name, rd, rn, op2)
	}
}

var shiftOps = [4]string{"lsl", "lsr", "asr", "ror"}

func disOperand2(word uint32) string {
	if word&(1<<25) != 0 {
		imm := word & 0xFF
		rot := ((word >> 8) & 0xF) * 2
		val := (imm >> rot) | (imm << ((32 - rot) % 32))
		return fmt.Sprintf("#0x%X", val)
	}
	rm := regNames[word&0xF]
	shType := shiftOps[(word>>5)&3]
	if word&(1<<4) != 0 {
		return fmt.Sprintf("%s, %s %s", rm, shType, regNames[(word>>8)&0xF])
	}
	amount := (word >> 7) & 0x1F
	if amount == 0 && (word>>5)&3 == 0 {
		return rm
	}
	return fmt.Sprintf("%s, %s #%d", rm, shType, amount)
}

func disARMMem(word uint32) string {
	mn := "str"
	if word&(1<<20) != 0 {
		mn = "ldr"
	}
	if word&(1<<22) != 0 {
		mn += "b"
	}
	rd := regNames[(word>>12)&0xF]
	rn := regNames[(word>>16)&0xF]
	sign := ""
	if word&(1<<23) == 0 {
		sign = "-"
	}
	var off string
	if word&(1<<25) == 0 {
		off = fmt.Sprintf("#%s%d", sign, word&0xFFF)
	} else {
		off = sign + disOperand2(word&^(1<<25))
	}
	if word&(1<<24) == 0 {
		return fmt.Sprintf("%s%s %s, [%s], %s", mn, cond(word), rd, rn, off)
	}
	wb := ""
	if word&(1<<21) != 0 {
		wb = "!"
	}
	if word&0xFFF == 0 && word&(1<<25) == 0 {
		return fmt.Sprintf("%s%s %s, [%s]%s", mn, cond(word), rd, rn, wb)
	}
	return fmt.Sprintf("%s%s %s, [%s, %s]%s", mn, cond(word), rd, rn, off, wb)
}

func disARMMisc(word uint32) string {
	var mn string
	load := word&(1<<20) != 0
	sh := (word >> 5) & 3
	switch {
	case load && sh == 1:
		mn = "ldrh"
	case load && sh == 2:
		mn = "ldrsb"
	case load && sh == 3:
		mn = "ldrsh"
	case sh == 1:
		mn = "strh"
	default:
		return fmt.Sprintf(".i32 0x%08X", word)
	}
	rd := regNames[(word>>12)&0xF]
	rn := regNames[(word>>16)&0xF]
	sign := ""
	if word&(1<<23) == 0 {
		sign = "-"
	}
	var off string
	if word&(1<<22) != 0 {
		off = fmt.Sprintf("#%s%d", sign, ((word>>4)&0xF0)|(word&0xF))
	} else {
		off = sign + regNames[word&0xF]
	}
	if word&(1<<24) == 0 {
		return fmt.Sprintf("%s%s %s, [%s], %s", mn, cond(word), rd, rn, off)
	}
	wb := ""
	if word&(1<<21) != 0 {
		wb = "!"
	}
	return fmt.Sprintf("%s%s %s, [%s, %s]%s", mn, cond(word), rd, rn, off, wb)
}

func disARMBlock(word uint32) string {
	load := word&(1<<20) != 0
	mn := "stm"
	if load {
		mn = "ldm"
	}
	p := word&(1<<24) != 0
	u := word&(1<<23) != 0
	switch {
	case !p && u:
		mn += "ia"
	case p && u:
		mn += "ib"
	case !p && !u:
		mn += "da"
	default:
		mn += "db"
	}
	rn := regNames[(word>>16)&0xF]
	wb := ""
	if word&(1<<21) != 0 {
		wb = "!"
	}
	return fmt.Sprintf("%s%s %s%s, %s", mn, cond(word), rn, wb, regList(uint16(word&0xFFFF)))
}

func regList(list uint16) string {
	out := "{"
	first := true
	for i := 0; i < 16; i++ {
		if list&(1<<i) == 0 {
			continue
		}
		if !first {
			out += ", "
		}
		out += regNames[i]
		first = false
	}
	return out + "}"
}

// Thumb renders one 16-bit instruction halfword at the given address.
// A bl pair is rendered from its first halfword when the second is supplied.
func Thumb(half uint16, next uint16, addr uint32) (text string, size int) {
	w := uint32(half)
	switch {
	case w&0xF800 == 0xF000 && uint32(next)&0xF800 == 0xF800:
		off := (int32(w&0x7FF) << 21 >> 9) | int32(next&0x7FF)<<1
		target := addr + 4 + uint32(off)
		return fmt.Sprintf("bl 0x%08X", target), 4
	case w&0xF800 == 0xE000:
		off := int32(w&0x7FF) << 21 >> 20
		return fmt.Sprintf("b 0x%08X", addr+4+uint32(off)), 2
	case w&0xFF00 == 0xDF00:
		return fmt.Sprintf("swi 0x%X", w&0xFF), 2
	case w&0xF000 == 0xD000:
		off := int32(int8(w)) * 2
		return fmt.Sprintf("b.%s 0x%08X", condNames[(w>>8)&0xF], addr+4+uint32(off)), 2
	case w&0xF800 == 0x4800:
		return fmt.Sprintf("ldr %s, [pc, #%d]", regNames[(w>>8)&7], (w&0xFF)*4), 2
	case w&0xFF87 == 0x4700:
		return fmt.Sprintf("bx %s", regNames[(w>>3)&0xF]), 2
	case w&0xFC00 == 0x4400:
		ops := [3]string{"add", "cmp", "mov"}
		op := (w >> 8) & 3
		rd := (w & 7) | ((w >> 4) & 8)
		rm := (w >> 3) & 0xF
		return fmt.Sprintf("%s %s, %s", ops[op], regNames[rd], regNames[rm]), 2
	case w&0xFC00 == 0x4000:
		names := [16]string{"and", "eor", "lsl", "lsr", "asr", "adc", "sbc", "ror",
			"tst", "neg", "cmp", "cmn", "orr", "mul", "bic", "mvn"}
		return fmt.Sprintf("%s %s, %s", names[(w>>6)&0xF], regNames[w&7], regNames[(w>>3)&7]), 2
	case w&0xE000 == 0x2000:
		ops := [4]string{"mov", "cmp", "add", "sub"}
		return fmt.Sprintf("%s %s, #%d", ops[(w>>11)&3], regNames[(w>>8)&7], w&0xFF), 2
	case w&0xF800 == 0x1800:
		op := "add"
		if w&(1<<9) != 0 {
			op = "sub"
		}
		if w&(1<<10) != 0 {
			return fmt.Sprintf("%s %s, %s, #%d", op, regNames[w&7], regNames[(w>>3)&7], (w>>6)&7), 2
		}
		return fmt.Sprintf("%s %s, %s, %s", op, regNames[w&7], regNames[(w>>3)&7], regNames[(w>>6)&7]), 2
	case w&0xE000 == 0x0000:
		ops := [3]string{"lsl", "lsr", "asr"}
		return fmt.Sprintf("%s %s, %s, #%d", ops[(w>>11)&3], regNames[w&7], regNames[(w>>3)&7], (w>>6)&0x1F), 2
	case w&0xF000 == 0x5000:
		names := map[uint16]string{
			0: "str", 2: "strb", 4: "ldr", 6: "ldrb",
			1: "strh", 3: "ldrsb", 5: "ldrh", 7: "ldrsh",
		}
		key := ((w >> 10) & 6) | ((w >> 9) & 1)
		return fmt.Sprintf("%s %s, [%s, %s]", names[key], regNames[w&7], regNames[(w>>3)&7], regNames[(w>>6)&7]), 2
	case w&0xE000 == 0x6000:
		mn := "str"
		scale := 4
		if w&(1<<12) != 0 {
			mn += "b"
			scale = 1
		}
		if w&(1<<11) != 0 {
			mn = "ldr" + mn[3:]
		}
		return fmt.Sprintf("%s %s, [%s, #%d]", mn, regNames[w&7], regNames[(w>>3)&7], int((w>>6)&0x1F)*scale), 2
	case w&0xF000 == 0x8000:
		mn := "strh"
		if w&(1<<11) != 0 {
			mn = "ldrh"
		}
		return fmt.Sprintf("%s %s, [%s, #%d]", mn, regNames[w&7], regNames[(w>>3)&7], ((w>>6)&0x1F)*2), 2
	case w&0xF000 == 0x9000:
		mn := "str"
		if w&(1<<11) != 0 {
			mn = "ldr"
		}
		return fmt.Sprintf("%s %s, [sp, #%d]", mn, regNames[(w>>8)&7], (w&0xFF)*4), 2
	case w&0xF000 == 0xA000:
		base := "pc"
		if w&(1<<11) != 0 {
			base = "sp"
		}
		return fmt.Sprintf("add %s, %s, #%d", regNames[(w>>8)&7], base, (w&0xFF)*4), 2
	case w&0xFF00 == 0xB000:
		op := "add"
		if w&(1<<7) != 0 {
			op = "sub"
		}
		return fmt.Sprintf("%s sp, #%d", op, (w&0x7F)*4), 2
	case w&0xF600 == 0xB400:
		mn := "push"
		list := uint16(w & 0xFF)
		if w&(1<<11) != 0 {
			mn = "pop"
			if w&(1<<8) != 0 {
				list |= 1 << 15
			}
		} else if w&(1<<8) != 0 {
			list |= 1 << 14
		}
		return fmt.Sprintf("%s %s", mn, regList(list)), 2
	case w&0xF000 == 0xC000:
		mn := "stmia"
		if w&(1<<11) != 0 {
			mn = "ldmia"
		}
		return fmt.Sprintf("%s %s!, %s", mn, regNames[(w>>8)&7], regList(uint16(w&0xFF))), 2
	}
	return fmt.Sprintf(".i16 0x%04X", w), 2
}
