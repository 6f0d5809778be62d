// Package encoder lowers a parsed WAT module to the Wasm binary format.
package encoder

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wippyai/wagi/wat/internal/ast"
	"github.com/wippyai/wagi/wat/internal/opcode"
)

const (
	secType   byte = 1
	secImport byte = 2
	secFunc   byte = 3
	secMemory byte = 5
	secExport byte = 7
	secStart  byte = 8
	secCode   byte = 10
	secData   byte = 11
)

type encoder struct {
	mod      *ast.Module
	types    []ast.FuncType
	funcIdx  map[string]uint32 // $ident -> function index space
	numFuncs uint32            // imports + defined
}

// Encode serializes mod into a binary Wasm module.
func Encode(mod *ast.Module) ([]byte, error) {
	e := &encoder{mod: mod, funcIdx: make(map[string]uint32)}

	var idx uint32
	for _, imp := range mod.Imports {
		if !imp.IsFunc {
			continue
		}
		if imp.Ident != "" {
			e.funcIdx[imp.Ident] = idx
		}
		idx++
	}
	for i := range mod.Funcs {
		if id := mod.Funcs[i].Ident; id != "" {
			e.funcIdx[id] = idx
		}
		idx++
	}
	e.numFuncs = idx

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	typeSec := e.typeSection()
	importSec, err := e.importSection()
	if err != nil {
		return nil, err
	}
	funcSec := e.funcSection()
	memSec := e.memorySection()
	exportSec, err := e.exportSection()
	if err != nil {
		return nil, err
	}
	startSec, err := e.startSection()
	if err != nil {
		return nil, err
	}
	codeSec, err := e.codeSection()
	if err != nil {
		return nil, err
	}
	dataSec := e.dataSection()

	out = appendSection(out, secType, typeSec)
	out = appendSection(out, secImport, importSec)
	out = appendSection(out, secFunc, funcSec)
	out = appendSection(out, secMemory, memSec)
	out = appendSection(out, secExport, exportSec)
	out = appendSection(out, secStart, startSec)
	out = appendSection(out, secCode, codeSec)
	out = appendSection(out, secData, dataSec)
	return out, nil
}

func appendSection(out []byte, id byte, body []byte) []byte {
	if body == nil {
		return out
	}
	out = append(out, id)
	out = appendU32(out, uint32(len(body)))
	return append(out, body...)
}

func appendU32(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

func appendS64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

func appendName(dst []byte, s string) []byte {
	dst = appendU32(dst, uint32(len(s)))
	return append(dst, s...)
}

func (e *encoder) typeIndex(t ast.FuncType) uint32 {
	for i, have := range e.types {
		if have.Equal(t) {
			return uint32(i)
		}
	}
	e.types = append(e.types, t)
	return uint32(len(e.types) - 1)
}

func (e *encoder) typeSection() []byte {
	// Assign indices in declaration order first so the section is stable.
	for _, imp := range e.mod.Imports {
		if imp.IsFunc {
			e.typeIndex(imp.Type)
		}
	}
	for i := range e.mod.Funcs {
		e.typeIndex(e.mod.Funcs[i].Type)
	}
	if len(e.types) == 0 {
		return nil
	}
	body := appendU32(nil, uint32(len(e.types)))
	for _, t := range e.types {
		body = append(body, 0x60)
		body = appendU32(body, uint32(len(t.Params)))
		for _, p := range t.Params {
			body = append(body, byte(p))
		}
		body = appendU32(body, uint32(len(t.Results)))
		for _, r := range t.Results {
			body = append(body, byte(r))
		}
	}
	return body
}

func (e *encoder) importSection() ([]byte, error) {
	if len(e.mod.Imports) == 0 {
		return nil, nil
	}
	body := appendU32(nil, uint32(len(e.mod.Imports)))
	for _, imp := range e.mod.Imports {
		body = appendName(body, imp.Module)
		body = appendName(body, imp.Name)
		if imp.IsFunc {
			body = append(body, 0x00)
			body = appendU32(body, e.typeIndex(imp.Type))
		} else {
			body = append(body, 0x02)
			body = appendLimits(body, imp.MemMin, imp.MemMax, imp.HasMax)
		}
	}
	return body, nil
}

func appendLimits(dst []byte, min, max uint32, hasMax bool) []byte {
	if hasMax {
		dst = append(dst, 0x01)
		dst = appendU32(dst, min)
		return appendU32(dst, max)
	}
	dst = append(dst, 0x00)
	return appendU32(dst, min)
}

func (e *encoder) funcSection() []byte {
	if len(e.mod.Funcs) == 0 {
		return nil
	}
	body := appendU32(nil, uint32(len(e.mod.Funcs)))
	for i := range e.mod.Funcs {
		body = appendU32(body, e.typeIndex(e.mod.Funcs[i].Type))
	}
	return body
}

func (e *encoder) memorySection() []byte {
	if e.mod.Memory == nil {
		return nil
	}
	body := appendU32(nil, 1)
	return appendLimits(body, e.mod.Memory.Min, e.mod.Memory.Max, e.mod.Memory.HasMax)
}

func (e *encoder) resolveFunc(ref string) (uint32, error) {
	if idx, ok := e.funcIdx[ref]; ok {
		return idx, nil
	}
	if v, err := strconv.ParseUint(ref, 10, 32); err == nil {
		if uint32(v) >= e.numFuncs {
			return 0, fmt.Errorf("wat: function index %d out of range", v)
		}
		return uint32(v), nil
	}
	return 0, fmt.Errorf("wat: unknown function %q", ref)
}

func (e *encoder) exportSection() ([]byte, error) {
	type export struct {
		name string
		kind byte
		idx  uint32
	}
	var exports []export

	numImported := e.numFuncs - uint32(len(e.mod.Funcs))
	for i := range e.mod.Funcs {
		for _, name := range e.mod.Funcs[i].InlineExports {
			exports = append(exports, export{name, ast.ExportFunc, numImported + uint32(i)})
		}
	}
	for _, ex := range e.mod.Exports {
		var idx uint32
		switch ex.Kind {
		case ast.ExportFunc:
			v, err := e.resolveFunc(ex.Ref)
			if err != nil {
				return nil, err
			}
			idx = v
		case ast.ExportMemory:
			idx = 0
		}
		exports = append(exports, export{ex.Name, ex.Kind, idx})
	}
	if len(exports) == 0 {
		return nil, nil
	}
	body := appendU32(nil, uint32(len(exports)))
	for _, ex := range exports {
		body = appendName(body, ex.name)
		body = append(body, ex.kind)
		body = appendU32(body, ex.idx)
	}
	return body, nil
}

func (e *encoder) startSection() ([]byte, error) {
	if e.mod.Start == "" {
		return nil, nil
	}
	idx, err := e.resolveFunc(e.mod.Start)
	if err != nil {
		return nil, err
	}
	return appendU32(nil, idx), nil
}

func (e *encoder) codeSection() ([]byte, error) {
	if len(e.mod.Funcs) == 0 {
		return nil, nil
	}
	body := appendU32(nil, uint32(len(e.mod.Funcs)))
	for i := range e.mod.Funcs {
		code, err := e.encodeBody(&e.mod.Funcs[i])
		if err != nil {
			return nil, err
		}
		body = appendU32(body, uint32(len(code)))
		body = append(body, code...)
	}
	return body, nil
}

func (e *encoder) encodeBody(fn *ast.Func) ([]byte, error) {
	// Run-length compress consecutive locals of the same type.
	type group struct {
		count uint32
		vt    ast.ValType
	}
	var groups []group
	for _, vt := range fn.Locals {
		if n := len(groups); n > 0 && groups[n-1].vt == vt {
			groups[n-1].count++
		} else {
			groups = append(groups, group{1, vt})
		}
	}
	code := appendU32(nil, uint32(len(groups)))
	for _, g := range groups {
		code = appendU32(code, g.count)
		code = append(code, byte(g.vt))
	}

	for _, in := range fn.Body {
		info, ok := opcode.Table[in.Op]
		if !ok {
			return nil, fmt.Errorf("wat: unknown instruction %q", in.Op)
		}
		code = append(code, info.Code)
		switch info.Imm {
		case opcode.ImmBlock:
			code = append(code, in.BlockType)
		case opcode.ImmLabel:
			code = appendU32(code, in.Depth)
		case opcode.ImmCall:
			idx, err := e.resolveFunc(in.Ref)
			if err != nil {
				return nil, err
			}
			code = appendU32(code, idx)
		case opcode.ImmLocal:
			code = appendU32(code, in.Idx)
		case opcode.ImmMemArg:
			code = appendU32(code, in.Align)
			code = appendU32(code, in.Offset)
		case opcode.ImmMemIdx:
			code = append(code, 0x00)
		case opcode.ImmI32:
			code = appendS64(code, int64(int32(in.I64)))
		case opcode.ImmI64:
			code = appendS64(code, in.I64)
		case opcode.ImmF32:
			bits := math.Float32bits(float32(in.F64))
			code = append(code, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
		case opcode.ImmF64:
			bits := math.Float64bits(in.F64)
			for s := 0; s < 64; s += 8 {
				code = append(code, byte(bits>>s))
			}
		}
	}
	return append(code, 0x0b), nil
}

func (e *encoder) dataSection() []byte {
	if len(e.mod.Datas) == 0 {
		return nil
	}
	body := appendU32(nil, uint32(len(e.mod.Datas)))
	for _, d := range e.mod.Datas {
		body = appendU32(body, 0) // memory index
		body = append(body, 0x41)
		body = appendS64(body, d.Offset)
		body = append(body, 0x0b)
		body = appendU32(body, uint32(len(d.Bytes)))
		body = append(body, d.Bytes...)
	}
	return body
}
