package parser

import (
	"strconv"
	"strings"

	"github.com/wippyai/wagi/wat/internal/ast"
	"github.com/wippyai/wagi/wat/internal/opcode"
	"github.com/wippyai/wagi/wat/internal/token"
)

// funcCtx tracks per-function name resolution state while parsing a body.
type funcCtx struct {
	fn     *ast.Func
	names  []string // params then locals, "" for unnamed
	labels []string // innermost last
}

func (c *funcCtx) emit(in ast.Instr) {
	c.fn.Body = append(c.fn.Body, in)
}

func (p *Parser) parseFunc(mod *ast.Module) error {
	fn := ast.Func{}
	ctx := &funcCtx{fn: &fn}

	if p.peek().Kind == token.Atom && strings.HasPrefix(p.peek().Text, "$") {
		fn.Ident = p.next().Text
	}

	// Declarations: inline exports, params, results, locals. They precede
	// the body, so stop at the first sexpr that is not a declaration.
decls:
	for p.peek().Kind == token.LParen {
		head := p.toks[p.pos+1]
		if head.Kind != token.Atom {
			break
		}
		switch head.Text {
		case "export":
			p.next()
			p.next()
			name, err := p.expect(token.String)
			if err != nil {
				return err
			}
			fn.InlineExports = append(fn.InlineExports, name.Text)
			if _, err := p.expect(token.RParen); err != nil {
				return err
			}
		case "param":
			p.next()
			p.next()
			if err := p.parseValTypes(&fn.Type.Params, &ctx.names); err != nil {
				return err
			}
		case "result":
			p.next()
			p.next()
			if err := p.parseValTypes(&fn.Type.Results, nil); err != nil {
				return err
			}
		case "local":
			p.next()
			p.next()
			if err := p.parseValTypes(&fn.Locals, &ctx.names); err != nil {
				return err
			}
		default:
			break decls
		}
	}

	if err := p.parseInstrs(ctx); err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	mod.Funcs = append(mod.Funcs, fn)
	return nil
}

// parseInstrs parses instructions until the enclosing RParen, which is
// left for the caller to consume.
func (p *Parser) parseInstrs(ctx *funcCtx) error {
	for {
		switch p.peek().Kind {
		case token.RParen:
			return nil
		case token.LParen:
			if err := p.parseFolded(ctx); err != nil {
				return err
			}
		case token.Atom:
			if err := p.parsePlain(ctx); err != nil {
				return err
			}
		default:
			return p.errf("unexpected end of input")
		}
	}
}

func (p *Parser) parsePlain(ctx *funcCtx) error {
	op := p.next().Text
	switch op {
	case "block", "loop", "if":
		in, err := p.parseBlockHead(ctx, op)
		if err != nil {
			return err
		}
		ctx.emit(in)
		return nil
	case "else":
		ctx.emit(ast.Instr{Op: "else"})
		return nil
	case "end":
		if n := len(ctx.labels); n > 0 {
			ctx.labels = ctx.labels[:n-1]
		}
		ctx.emit(ast.Instr{Op: "end"})
		return nil
	}
	in, err := p.readOp(ctx, op)
	if err != nil {
		return err
	}
	ctx.emit(in)
	return nil
}

func (p *Parser) parseFolded(ctx *funcCtx) error {
	p.next() // LParen
	t, err := p.expect(token.Atom)
	if err != nil {
		return err
	}
	op := t.Text

	switch op {
	case "block", "loop":
		in, err := p.parseBlockHead(ctx, op)
		if err != nil {
			return err
		}
		ctx.emit(in)
		if err := p.parseInstrs(ctx); err != nil {
			return err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
		ctx.labels = ctx.labels[:len(ctx.labels)-1]
		ctx.emit(ast.Instr{Op: "end"})
		return nil

	case "if":
		in, err := p.parseBlockHead(ctx, op)
		if err != nil {
			return err
		}
		// Folded condition expressions precede the then-arm.
		for p.peek().Kind == token.LParen && p.toks[p.pos+1].Text != "then" {
			if err := p.parseFolded(ctx); err != nil {
				return err
			}
		}
		ctx.emit(in)
		if _, err := p.expect(token.LParen); err != nil {
			return err
		}
		if kw := p.next(); kw.Kind != token.Atom || kw.Text != "then" {
			return p.errf("expected 'then'")
		}
		if err := p.parseInstrs(ctx); err != nil {
			return err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
		if p.peek().Kind == token.LParen && p.toks[p.pos+1].Text == "else" {
			p.next()
			p.next()
			ctx.emit(ast.Instr{Op: "else"})
			if err := p.parseInstrs(ctx); err != nil {
				return err
			}
			if _, err := p.expect(token.RParen); err != nil {
				return err
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
		ctx.labels = ctx.labels[:len(ctx.labels)-1]
		ctx.emit(ast.Instr{Op: "end"})
		return nil
	}

	in, err := p.readOp(ctx, op)
	if err != nil {
		return err
	}
	// Folded operands follow the immediates and evaluate first.
	for p.peek().Kind == token.LParen {
		if err := p.parseFolded(ctx); err != nil {
			return err
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	ctx.emit(in)
	return nil
}

// parseBlockHead reads the optional label and result annotation of a
// block/loop/if and pushes the label scope.
func (p *Parser) parseBlockHead(ctx *funcCtx, op string) (ast.Instr, error) {
	in := ast.Instr{Op: op, BlockType: ast.BlockVoid}
	label := ""
	if p.peek().Kind == token.Atom && strings.HasPrefix(p.peek().Text, "$") {
		label = p.next().Text
	}
	if p.peek().Kind == token.LParen && p.toks[p.pos+1].Text == "result" {
		p.next()
		p.next()
		t, err := p.expect(token.Atom)
		if err != nil {
			return in, err
		}
		vt, err := valType(t.Text)
		if err != nil {
			return in, err
		}
		in.BlockType = byte(vt)
		if _, err := p.expect(token.RParen); err != nil {
			return in, err
		}
	}
	ctx.labels = append(ctx.labels, label)
	return in, nil
}

// readOp reads an instruction mnemonic's immediates.
func (p *Parser) readOp(ctx *funcCtx, op string) (ast.Instr, error) {
	info, ok := opcode.Table[op]
	if !ok {
		return ast.Instr{}, p.errf("unknown instruction %q", op)
	}
	in := ast.Instr{Op: op}

	switch info.Imm {
	case opcode.ImmLabel:
		t, err := p.expect(token.Atom)
		if err != nil {
			return in, err
		}
		if strings.HasPrefix(t.Text, "$") {
			depth := -1
			for i := len(ctx.labels) - 1; i >= 0; i-- {
				if ctx.labels[i] == t.Text {
					depth = len(ctx.labels) - 1 - i
					break
				}
			}
			if depth < 0 {
				return in, p.errf("unknown label %q", t.Text)
			}
			in.Depth = uint32(depth)
		} else {
			v, err := strconv.ParseUint(t.Text, 10, 32)
			if err != nil {
				return in, p.errf("invalid label %q", t.Text)
			}
			in.Depth = uint32(v)
		}

	case opcode.ImmCall:
		t, err := p.expect(token.Atom)
		if err != nil {
			return in, err
		}
		in.Ref = t.Text

	case opcode.ImmLocal:
		t, err := p.expect(token.Atom)
		if err != nil {
			return in, err
		}
		if strings.HasPrefix(t.Text, "$") {
			idx := -1
			for i, n := range ctx.names {
				if n == t.Text {
					idx = i
					break
				}
			}
			if idx < 0 {
				return in, p.errf("unknown local %q", t.Text)
			}
			in.Idx = uint32(idx)
		} else {
			v, err := strconv.ParseUint(t.Text, 10, 32)
			if err != nil {
				return in, p.errf("invalid local index %q", t.Text)
			}
			in.Idx = uint32(v)
		}

	case opcode.ImmI32, opcode.ImmI64:
		t, err := p.expect(token.Atom)
		if err != nil {
			return in, err
		}
		v, err := parseIntImm(t.Text)
		if err != nil {
			return in, p.errf("invalid integer %q", t.Text)
		}
		in.I64 = v

	case opcode.ImmF32, opcode.ImmF64:
		t, err := p.expect(token.Atom)
		if err != nil {
			return in, err
		}
		v, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return in, p.errf("invalid float %q", t.Text)
		}
		in.F64 = v

	case opcode.ImmMemArg:
		in.Align = info.NatAlign
		for p.peek().Kind == token.Atom {
			text := p.peek().Text
			if v, ok := strings.CutPrefix(text, "offset="); ok {
				n, err := strconv.ParseUint(v, 0, 32)
				if err != nil {
					return in, p.errf("invalid offset %q", text)
				}
				in.Offset = uint32(n)
				p.next()
			} else if v, ok := strings.CutPrefix(text, "align="); ok {
				n, err := strconv.ParseUint(v, 0, 32)
				if err != nil || n == 0 || n&(n-1) != 0 {
					return in, p.errf("invalid align %q", text)
				}
				exp := uint32(0)
				for n > 1 {
					n >>= 1
					exp++
				}
				in.Align = exp
				p.next()
			} else {
				break
			}
		}
	}
	return in, nil
}

// parseIntImm accepts decimal and 0x-prefixed integers, signed or not,
// including values that only fit when read as unsigned 64-bit.
func parseIntImm(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}
