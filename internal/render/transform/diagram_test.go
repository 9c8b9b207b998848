package transform

import (
	"testing"

	"github.com/yuin/goldmark/ast"
)

func TestDiagramBlockNodeKind(t *testing.T) {
	t.Parallel()

	block := &DiagramBlock{Source: "a -> b", DiagramKind: schemaLanguage}
	if got := block.Kind(); got != KindDiagramBlock {
		t.Fatalf("node kind = %v, want %v", got, KindDiagramBlock)
	}
	if block.DiagramKind != schemaLanguage {
		t.Fatalf("diagram kind = %q, want %q", block.DiagramKind, schemaLanguage)
	}
	var _ ast.Node = block
}

func TestDecodeSourceRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := DecodeSource("not base64!!"); err == nil {
		t.Fatal("expected decode error for invalid base64")
	}
	round, err := DecodeSource(EncodeSource("x -> y: hello"))
	if err != nil {
		t.Fatalf("DecodeSource: %v", err)
	}
	if round != "x -> y: hello" {
		t.Fatalf("round trip = %q", round)
	}
}
