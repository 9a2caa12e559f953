package insts

// Encoders for the supported subset. They are used to assemble test
// programs and by tools that synthesize small guest programs.

// EncodeADDImm encodes ADD Xd|SP, Xn|SP, #imm12{, LSL #12}.
func EncodeADDImm(rd, rn uint8, imm12 uint16, shift12 bool) uint32 {
	word := uint32(0x91000000) | uint32(imm12&0xFFF)<<10 | uint32(rn&31)<<5 | uint32(rd&31)
	if shift12 {
		word |= 1 << 22
	}
	return word
}

func encodeRRR(base uint32, rd, rn, rm uint8) uint32 {
	return base | uint32(rm&31)<<16 | uint32(rn&31)<<5 | uint32(rd&31)
}

// EncodeADDS encodes ADDS Xd, Xn, Xm.
func EncodeADDS(rd, rn, rm uint8) uint32 { return encodeRRR(0xAB000000, rd, rn, rm) }

// EncodeSUBS encodes SUBS Xd, Xn, Xm. CMP Xn, Xm is EncodeSUBS(XZR, n, m).
func EncodeSUBS(rd, rn, rm uint8) uint32 { return encodeRRR(0xEB000000, rd, rn, rm) }

// EncodeORR encodes ORR Xd, Xn, Xm. MOV Xd, Xm is EncodeORR(d, XZR, m).
func EncodeORR(rd, rn, rm uint8) uint32 { return encodeRRR(0xAA000000, rd, rn, rm) }

// EncodeEOR encodes EOR Xd, Xn, Xm.
func EncodeEOR(rd, rn, rm uint8) uint32 { return encodeRRR(0xCA000000, rd, rn, rm) }

// EncodeANDS encodes ANDS Xd, Xn, Xm.
func EncodeANDS(rd, rn, rm uint8) uint32 { return encodeRRR(0xEA000000, rd, rn, rm) }

// EncodeMVN encodes MVN Xd, Xm (ORN Xd, XZR, Xm).
func EncodeMVN(rd, rm uint8) uint32 { return encodeRRR(0xAA200000, rd, XZR, rm) }

func encodeMem(base uint32, rt, rn uint8, offset int16) uint32 {
	return base | (uint32(offset)&0x1FF)<<12 | uint32(rn&31)<<5 | uint32(rt&31)
}

// EncodeLDUR encodes LDUR Xt, [Xn|SP, #simm9].
func EncodeLDUR(rt, rn uint8, offset int16) uint32 { return encodeMem(0xF8400000, rt, rn, offset) }

// EncodeSTUR encodes STUR Xt, [Xn|SP, #simm9].
func EncodeSTUR(rt, rn uint8, offset int16) uint32 { return encodeMem(0xF8000000, rt, rn, offset) }

// EncodeLDURB encodes LDURB Wt, [Xn|SP, #simm9].
func EncodeLDURB(rt, rn uint8, offset int16) uint32 { return encodeMem(0x38400000, rt, rn, offset) }

// EncodeSTURB encodes STURB Wt, [Xn|SP, #simm9].
func EncodeSTURB(rt, rn uint8, offset int16) uint32 { return encodeMem(0x38000000, rt, rn, offset) }

// EncodeMOVZ encodes MOVZ Xd, #imm16, LSL #(hw*16).
func EncodeMOVZ(rd uint8, imm16 uint16, hw uint8) uint32 {
	return 0xD2800000 | uint32(hw&3)<<21 | uint32(imm16)<<5 | uint32(rd&31)
}

// EncodeMOVK encodes MOVK Xd, #imm16, LSL #(hw*16).
func EncodeMOVK(rd uint8, imm16 uint16, hw uint8) uint32 {
	return 0xF2800000 | uint32(hw&3)<<21 | uint32(imm16)<<5 | uint32(rd&31)
}

// EncodeLSL encodes LSL Xd, Xn, #shift as UBFM.
func EncodeLSL(rd, rn, shift uint8) uint32 {
	immr := uint32(64-uint32(shift&63)) % 64
	imms := uint32(63 - shift&63)
	return 0xD3400000 | immr<<16 | imms<<10 | uint32(rn&31)<<5 | uint32(rd&31)
}

// EncodeLSR encodes LSR Xd, Xn, #shift as UBFM.
func EncodeLSR(rd, rn, shift uint8) uint32 {
	return 0xD3400000 | uint32(shift&63)<<16 | 63<<10 | uint32(rn&31)<<5 | uint32(rd&31)
}

// EncodeASR encodes ASR Xd, Xn, #shift as SBFM.
func EncodeASR(rd, rn, shift uint8) uint32 {
	return 0x93400000 | uint32(shift&63)<<16 | 63<<10 | uint32(rn&31)<<5 | uint32(rd&31)
}

// EncodeB encodes B with a byte offset relative to the branch.
func EncodeB(offset int64) uint32 {
	return 0x14000000 | uint32(offset>>2)&0x3FFFFFF
}

// EncodeBL encodes BL with a byte offset relative to the branch.
func EncodeBL(offset int64) uint32 {
	return 0x94000000 | uint32(offset>>2)&0x3FFFFFF
}

// EncodeBCond encodes B.cond with a byte offset relative to the branch.
func EncodeBCond(cond Cond, offset int64) uint32 {
	return 0x54000000 | (uint32(offset>>2)&0x7FFFF)<<5 | uint32(cond&0xF)
}

// EncodeRET encodes RET Xn.
func EncodeRET(rn uint8) uint32 {
	return 0xD65F0000 | uint32(rn&31)<<5
}

// EncodeHLT encodes HLT #0.
func EncodeHLT() uint32 { return 0xD4400000 }

// EncodeNOP encodes NOP.
func EncodeNOP() uint32 { return NOPWord }
