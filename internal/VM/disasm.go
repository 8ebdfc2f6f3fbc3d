package VM

import (
	"fmt"
	"strings"
)

// Disassemble renders prog in a readable listing driven entirely by the
// opcode catalog; no opcode is special-cased here.
func Disassemble(prog *Program) string {
	var b strings.Builder
	fmt.Fprintf(&b, "program %s\n", prog.QueryID)
	if len(prog.Slots) > 0 {
		b.WriteString("state:\n")
		for i, s := range prog.Slots {
			fmt.Fprintf(&b, "  s%-3d %-12s %s\n", i, s.Kind, s.Name)
		}
	}
	if len(prog.Consts) > 0 {
		b.WriteString("consts:\n")
		for i, c := range prog.Consts {
			fmt.Fprintf(&b, "  c%-3d %s\n", i, c)
		}
	}
	for i := range prog.Funcs {
		b.WriteString(DisassembleFunc(prog, FunctionID(i)))
	}
	return b.String()
}

// DisassembleFunc renders one function.
func DisassembleFunc(prog *Program, id FunctionID) string {
	fn, err := prog.Func(id)
	if err != nil {
		return fmt.Sprintf("<bad function %d: %v>\n", id, err)
	}
	var b strings.Builder
	par := ""
	if fn.Parallel {
		par = " parallel"
	}
	fmt.Fprintf(&b, "\nfunc %s (%s, %d regs)%s:\n", fn.Name, fn.Role, fn.NumRegs, par)
	for pc, in := range fn.Code {
		fmt.Fprintf(&b, "  %4d  %s\n", pc, FormatInstr(prog, in))
	}
	return b.String()
}

// FormatInstr renders a single instruction.
func FormatInstr(prog *Program, in Instr) string {
	op := in.OpCode()
	if op >= NumOpCodes {
		return fmt.Sprintf("<invalid opcode %d>", uint16(op))
	}
	info := &opInfos[op]
	parts := make([]string, 0, len(info.Operands))
	for i, kind := range info.Operands {
		v := operandField(in, i)
		switch kind {
		case OperandRegDst, OperandRegSrc:
			parts = append(parts, fmt.Sprintf("r%d", v))
		case OperandImm, OperandCount:
			parts = append(parts, fmt.Sprintf("%d", v))
		case OperandConst:
			if prog != nil && v >= 0 && int(v) < len(prog.Consts) {
				parts = append(parts, fmt.Sprintf("c%d<%s>", v, prog.Consts[v]))
			} else {
				parts = append(parts, fmt.Sprintf("c%d", v))
			}
		case OperandJump:
			parts = append(parts, fmt.Sprintf("->%d", v))
		case OperandFunc:
			name := fmt.Sprintf("f%d", v)
			if prog != nil && v >= 0 && int(v) < len(prog.Funcs) {
				name = prog.Funcs[v].Name
			}
			parts = append(parts, name)
		case OperandSlot:
			parts = append(parts, fmt.Sprintf("s%d", v))
		}
	}
	if len(parts) == 0 {
		return info.Name
	}
	return fmt.Sprintf("%-18s %s", info.Name, strings.Join(parts, ", "))
}
