// Package insts provides definitions and decoding for the ARM64 subset
// executed by the simulator.
//
// Every instruction is a 32-bit word whose bits [31:21] select the opcode
// class. Classification is a pure function of the raw word, so fetch can
// classify a word without any table initialization:
//
//	op := insts.Classify(0x91002820) // OpADDImm
//	inst := insts.Decode(0x91002820) // fields: Rd=0, Rn=1, Imm=10
//
// Supported classes: LDUR, LDURB, STUR, STURB, MOVZ, MOVK, ADD (immediate),
// ADDS, SUBS, MVN, ORR, EOR, ANDS (register), LSL, LSR, ASR, B, B.cond,
// BL, RET, NOP and HLT.
package insts
