package compiler

import (
	"os"
	"path/filepath"
	"testing"
)

func benchmarkCompile(b *testing.B, name string) {
	path, err := filepath.Abs(filepath.Join("..", "examples", name))
	if err != nil {
		b.Fatal(err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for b.Loop() {
		// A fresh compiler per iteration measures the whole pipeline
		// instead of a cache hit.
		c := New(predeclared())
		if _, err := c.CompileSource(path, src); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompileHello(b *testing.B)    { benchmarkCompile(b, "hello.enaml") }
func BenchmarkCompileBindings(b *testing.B) { benchmarkCompile(b, "bindings.enaml") }
func BenchmarkCompileTemplate(b *testing.B) { benchmarkCompile(b, "template.enaml") }

func BenchmarkCompileCached(b *testing.B) {
	path, _ := filepath.Abs(filepath.Join("..", "examples", "bindings.enaml"))
	src, err := os.ReadFile(path)
	if err != nil {
		b.Fatal(err)
	}
	c := New(predeclared())
	b.ResetTimer()
	for b.Loop() {
		if _, err := c.CompileSource(path, src); err != nil {
			b.Fatal(err)
		}
	}
}
