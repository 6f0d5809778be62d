package wat

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wippyai/wagi/wasm"
)

// Integration tests for the public Compile() API.

func TestCompile(t *testing.T) {
	t.Run("empty_module", func(t *testing.T) {
		out, err := Compile("(module)")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if len(out) != 8 {
			t.Errorf("expected 8 bytes, got %d", len(out))
		}
		if !wasm.IsModule(out) {
			t.Error("invalid WASM header")
		}
	})

	t.Run("simple_function", func(t *testing.T) {
		out, err := Compile(`(module
			(func (export "add") (param i32 i32) (result i32)
				(i32.add (local.get 0) (local.get 1))))`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		names, err := wasm.ExportedFunctions(out)
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		if len(names) != 1 || names[0] != "add" {
			t.Errorf("exports = %v, want [add]", names)
		}
	})

	t.Run("wasi_style_module", func(t *testing.T) {
		out, err := Compile(`(module
			(import "wasi_snapshot_preview1" "fd_write"
				(func $fd_write (param i32 i32 i32 i32) (result i32)))
			(memory (export "memory") 1)
			(data (i32.const 8) "content-type: text/plain\n\nhi")
			(func (export "_start")
				(i32.store (i32.const 0) (i32.const 8))
				(i32.store (i32.const 4) (i32.const 28))
				(call $fd_write (i32.const 1) (i32.const 0) (i32.const 1) (i32.const 40))
				drop))`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if !wasm.HasExportedFunction(out, "_start") {
			t.Error("missing _start export")
		}
		if !bytes.Contains(out, []byte("content-type: text/plain")) {
			t.Error("data segment not embedded")
		}
	})

	t.Run("named_locals_and_blocks", func(t *testing.T) {
		out, err := Compile(`(module
			(func (export "count") (param $n i32) (result i32)
				(local $acc i32)
				(block $done
					(loop $again
						(br_if $done (i32.eqz (local.get $n)))
						(local.set $acc (i32.add (local.get $acc) (i32.const 1)))
						(local.set $n (i32.sub (local.get $n) (i32.const 1)))
						(br $again)))
				(local.get $acc)))`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if !wasm.HasExportedFunction(out, "count") {
			t.Error("missing count export")
		}
	})

	t.Run("multiple_exports", func(t *testing.T) {
		out, err := Compile(`(module
			(func $a (export "_start"))
			(func $b)
			(export "_routes" (func $b)))`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		names, err := wasm.ExportedFunctions(out)
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		want := []string{"_start", "_routes"}
		if len(names) != len(want) {
			t.Fatalf("exports = %v, want %v", names, want)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("export[%d] = %q, want %q", i, names[i], want[i])
			}
		}
	})
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name, wat, wantErr string
	}{
		{"missing_module", "(func)", "expected 'module'"},
		{"unclosed", "(module", "unexpected end"},
		{"unknown_instr", "(module (func (bogus)))", "unknown instruction"},
		{"unknown_type", "(module (func (param bogus)))", "unknown value type"},
		{"unknown_label", "(module (func (block (br $x))))", "unknown label"},
		{"unknown_func", `(module (func (call $missing)))`, "unknown function"},
		{"unknown_field", "(module (table 1 funcref))", "unknown module field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.wat)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}

func TestComments(t *testing.T) {
	out, err := Compile(`(module
		;; line comment
		(; block
		   comment ;)
		(func (export "_start") nop))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !wasm.HasExportedFunction(out, "_start") {
		t.Error("missing _start export")
	}
}
