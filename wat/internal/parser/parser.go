// Package parser builds an ast.Module from a WAT token stream.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/wagi/wat/internal/ast"
	"github.com/wippyai/wagi/wat/internal/token"
)

type Parser struct {
	toks []token.Token
	pos  int
}

func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

func (p *Parser) peek() token.Token { return p.toks[p.pos] }

func (p *Parser) next() token.Token {
	t := p.toks[p.pos]
	if t.Kind != token.EOF {
		p.pos++
	}
	return t
}

func (p *Parser) errf(format string, args ...any) error {
	return fmt.Errorf("wat: %s (at offset %d)", fmt.Sprintf(format, args...), p.peek().Pos)
}

func (p *Parser) expect(kind token.Kind) (token.Token, error) {
	t := p.next()
	if t.Kind != kind {
		if t.Kind == token.EOF {
			return t, p.errf("unexpected end of input")
		}
		return t, p.errf("unexpected token %q", t.Text)
	}
	return t, nil
}

// Parse consumes the whole token stream and returns the module.
func (p *Parser) Parse() (*ast.Module, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	t := p.next()
	if t.Kind != token.Atom || t.Text != "module" {
		return nil, p.errf("expected 'module'")
	}
	mod := &ast.Module{}
	if p.peek().Kind == token.Atom && strings.HasPrefix(p.peek().Text, "$") {
		p.next() // module ident, unused
	}

	for {
		switch p.peek().Kind {
		case token.RParen:
			p.next()
			return mod, nil
		case token.EOF:
			return nil, p.errf("unexpected end of input")
		case token.LParen:
			if err := p.parseModuleField(mod); err != nil {
				return nil, err
			}
		default:
			return nil, p.errf("unexpected token %q", p.peek().Text)
		}
	}
}

func (p *Parser) parseModuleField(mod *ast.Module) error {
	p.next() // LParen
	t, err := p.expect(token.Atom)
	if err != nil {
		return err
	}
	switch t.Text {
	case "func":
		return p.parseFunc(mod)
	case "import":
		return p.parseImport(mod)
	case "memory":
		return p.parseMemory(mod)
	case "data":
		return p.parseData(mod)
	case "export":
		return p.parseExport(mod)
	case "start":
		ref, err := p.expect(token.Atom)
		if err != nil {
			return err
		}
		mod.Start = ref.Text
		_, err = p.expect(token.RParen)
		return err
	case "type":
		// Standalone type declarations are tolerated and skipped; function
		// signatures are deduplicated during encoding regardless.
		return p.skipBalanced()
	default:
		return p.errf("unknown module field %q", t.Text)
	}
}

// skipBalanced consumes tokens until the already-open sexpr closes.
func (p *Parser) skipBalanced() error {
	depth := 1
	for depth > 0 {
		switch p.next().Kind {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
		case token.EOF:
			return p.errf("unexpected end of input")
		}
	}
	return nil
}

func valType(s string) (ast.ValType, error) {
	switch s {
	case "i32":
		return ast.I32, nil
	case "i64":
		return ast.I64, nil
	case "f32":
		return ast.F32, nil
	case "f64":
		return ast.F64, nil
	}
	return 0, fmt.Errorf("wat: unknown value type %q", s)
}

func (p *Parser) parseImport(mod *ast.Module) error {
	modName, err := p.expect(token.String)
	if err != nil {
		return err
	}
	name, err := p.expect(token.String)
	if err != nil {
		return err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	kind, err := p.expect(token.Atom)
	if err != nil {
		return err
	}
	imp := ast.Import{Module: modName.Text, Name: name.Text}
	switch kind.Text {
	case "func":
		imp.IsFunc = true
		if p.peek().Kind == token.Atom && strings.HasPrefix(p.peek().Text, "$") {
			imp.Ident = p.next().Text
		}
		for p.peek().Kind == token.LParen {
			p.next()
			field, err := p.expect(token.Atom)
			if err != nil {
				return err
			}
			switch field.Text {
			case "param":
				if err := p.parseValTypes(&imp.Type.Params, nil); err != nil {
					return err
				}
			case "result":
				if err := p.parseValTypes(&imp.Type.Results, nil); err != nil {
					return err
				}
			case "type":
				if err := p.skipBalanced(); err != nil {
					return err
				}
				continue
			default:
				return p.errf("unexpected token %q", field.Text)
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
	case "memory":
		if p.peek().Kind == token.Atom && strings.HasPrefix(p.peek().Text, "$") {
			imp.Ident = p.next().Text
		}
		min, max, hasMax, err := p.parseLimits()
		if err != nil {
			return err
		}
		imp.MemMin, imp.MemMax, imp.HasMax = min, max, hasMax
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
	default:
		return p.errf("unsupported import kind %q", kind.Text)
	}
	mod.Imports = append(mod.Imports, imp)
	_, err = p.expect(token.RParen)
	return err
}

// parseValTypes reads value type atoms until RParen, consuming it. When
// names is non-nil a leading $name is recorded (one name per decl).
func (p *Parser) parseValTypes(dst *[]ast.ValType, names *[]string) error {
	var declName string
	if p.peek().Kind == token.Atom && strings.HasPrefix(p.peek().Text, "$") {
		declName = p.next().Text
	}
	for p.peek().Kind == token.Atom {
		vt, err := valType(p.next().Text)
		if err != nil {
			return err
		}
		*dst = append(*dst, vt)
		if names != nil {
			*names = append(*names, declName)
			declName = ""
		}
	}
	_, err := p.expect(token.RParen)
	return err
}

func (p *Parser) parseLimits() (min, max uint32, hasMax bool, err error) {
	t, err := p.expect(token.Atom)
	if err != nil {
		return 0, 0, false, err
	}
	v, err := strconv.ParseUint(t.Text, 10, 32)
	if err != nil {
		return 0, 0, false, p.errf("invalid memory limit %q", t.Text)
	}
	min = uint32(v)
	if p.peek().Kind == token.Atom && !strings.HasPrefix(p.peek().Text, "$") {
		t = p.next()
		v, err := strconv.ParseUint(t.Text, 10, 32)
		if err != nil {
			return 0, 0, false, p.errf("invalid memory limit %q", t.Text)
		}
		max, hasMax = uint32(v), true
	}
	return min, max, hasMax, nil
}

func (p *Parser) parseMemory(mod *ast.Module) error {
	mem := &ast.Memory{}
	if p.peek().Kind == token.Atom && strings.HasPrefix(p.peek().Text, "$") {
		mem.Ident = p.next().Text
	}
	// Inline export form: (memory (export "name") 1)
	for p.peek().Kind == token.LParen {
		p.next()
		field, err := p.expect(token.Atom)
		if err != nil {
			return err
		}
		if field.Text != "export" {
			return p.errf("unexpected token %q", field.Text)
		}
		name, err := p.expect(token.String)
		if err != nil {
			return err
		}
		mod.Exports = append(mod.Exports, ast.Export{Name: name.Text, Kind: ast.ExportMemory, Ref: "0"})
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
	}
	min, max, hasMax, err := p.parseLimits()
	if err != nil {
		return err
	}
	mem.Min, mem.Max, mem.HasMax = min, max, hasMax
	mod.Memory = mem
	_, err = p.expect(token.RParen)
	return err
}

func (p *Parser) parseData(mod *ast.Module) error {
	// (data (i32.const N) "bytes"...)
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	op, err := p.expect(token.Atom)
	if err != nil {
		return err
	}
	if op.Text != "i32.const" {
		return p.errf("data segment offset must be i32.const")
	}
	offTok, err := p.expect(token.Atom)
	if err != nil {
		return err
	}
	off, err := strconv.ParseInt(offTok.Text, 0, 64)
	if err != nil {
		return p.errf("invalid data offset %q", offTok.Text)
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	var data []byte
	for p.peek().Kind == token.String {
		data = append(data, p.next().Text...)
	}
	mod.Datas = append(mod.Datas, ast.Data{Offset: off, Bytes: data})
	_, err = p.expect(token.RParen)
	return err
}

func (p *Parser) parseExport(mod *ast.Module) error {
	name, err := p.expect(token.String)
	if err != nil {
		return err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	kind, err := p.expect(token.Atom)
	if err != nil {
		return err
	}
	var k byte
	switch kind.Text {
	case "func":
		k = ast.ExportFunc
	case "memory":
		k = ast.ExportMemory
	default:
		return p.errf("unsupported export kind %q", kind.Text)
	}
	ref, err := p.expect(token.Atom)
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	mod.Exports = append(mod.Exports, ast.Export{Name: name.Text, Kind: k, Ref: ref.Text})
	_, err = p.expect(token.RParen)
	return err
}
