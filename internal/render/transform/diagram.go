// Package transform provides custom rendering transformations for markdown elements.
package transform

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Diagram fence languages recognized by the transformer.
const (
	mermaidLanguage = "mermaid"
	schemaLanguage  = "schema"
)

// Placeholder lifecycle states written to data-diagram-state.
const (
	StatePending  = "pending"
	StateRendered = "rendered"
	StateFailed   = "failed"
)

// DiagramTransformer finds fenced ```mermaid and ```schema blocks and replaces
// them with placeholder nodes that a diagram adapter hydrates later.
type DiagramTransformer struct{}

// NewDiagramTransformer constructs the AST transformer.
func NewDiagramTransformer() parser.ASTTransformer {
	return &DiagramTransformer{}
}

// Transform implements parser.ASTTransformer.
func (t *DiagramTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	if node == nil {
		return
	}
	t.walk(node, reader)
}

func (t *DiagramTransformer) walk(parent ast.Node, reader text.Reader) {
	for child := parent.FirstChild(); child != nil; {
		next := child.NextSibling()

		if block, ok := child.(*ast.FencedCodeBlock); ok {
			if kind, ok := diagramKind(block, reader.Source()); ok {
				replacement := &DiagramBlock{
					Source:      blockSource(block, reader),
					DiagramKind: kind,
				}
				replacement.SetBlankPreviousLines(block.HasBlankPreviousLines())
				copyAttributes(block, replacement)
				parent.ReplaceChild(parent, block, replacement)
				child = next
				continue
			}
		}

		if child.HasChildren() {
			t.walk(child, reader)
		}
		child = next
	}
}

func diagramKind(block *ast.FencedCodeBlock, source []byte) (string, bool) {
	lang := strings.TrimSpace(string(block.Language(source)))
	switch {
	case strings.EqualFold(lang, mermaidLanguage):
		return mermaidLanguage, true
	case strings.EqualFold(lang, schemaLanguage):
		return schemaLanguage, true
	default:
		return "", false
	}
}

func blockSource(block *ast.FencedCodeBlock, reader text.Reader) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		segment := block.Lines().At(i)
		buf.Write(segment.Value(reader.Source()))
	}
	return buf.String()
}

func copyAttributes(src ast.Node, dst ast.Node) {
	if src == nil || dst == nil || src.Attributes() == nil {
		return
	}
	for _, attr := range src.Attributes() {
		dst.SetAttribute(attr.Name, attr.Value)
	}
}

// DiagramBlock is a diagram placeholder included directly in the AST.
type DiagramBlock struct {
	ast.BaseBlock
	Source      string
	DiagramKind string
}

// KindDiagramBlock represents a diagram placeholder node kind.
var KindDiagramBlock = ast.NewNodeKind("DiagramBlock")

// Kind implements ast.Node.
func (b *DiagramBlock) Kind() ast.NodeKind {
	return KindDiagramBlock
}

// IsRaw marks the node as raw HTML.
func (b *DiagramBlock) IsRaw() bool {
	return true
}

// Dump aids debugging.
func (b *DiagramBlock) Dump(source []byte, level int) {
	info := map[string]string{
		"DiagramKind": b.DiagramKind,
		"Source":      fmt.Sprintf("%d bytes", len(b.Source)),
	}
	ast.DumpHelper(b, source, level, info, nil)
}

// DiagramBlockRenderer writes placeholder nodes into HTML output.
type DiagramBlockRenderer struct{}

// NewDiagramBlockRenderer returns a renderer for diagram placeholder nodes.
func NewDiagramBlockRenderer() renderer.NodeRenderer {
	return &DiagramBlockRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *DiagramBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDiagramBlock, r.renderDiagramBlock)
}

func (r *DiagramBlockRenderer) renderDiagramBlock(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	block := node.(*DiagramBlock)

	class := "diagram"
	if block.DiagramKind == schemaLanguage {
		class = "diagram schema"
	}

	// The literal source stays inside the placeholder; the base64 attribute
	// carries the same source for the adapter, immune to markup in the text.
	open := fmt.Sprintf(`<div class="%s" data-diagram-kind="%s" data-diagram-state="%s" data-source-b64="%s">`,
		class, block.DiagramKind, StatePending, EncodeSource(block.Source))
	if _, err := w.WriteString(open); err != nil {
		return ast.WalkStop, err
	}
	if _, err := w.WriteString(block.Source); err != nil {
		return ast.WalkStop, err
	}
	if _, err := w.WriteString("</div>\n"); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

// EncodeSource encodes diagram source for the data-source-b64 attribute.
func EncodeSource(src string) string {
	return base64.StdEncoding.EncodeToString([]byte(src))
}

// DecodeSource decodes a data-source-b64 attribute value.
func DecodeSource(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode diagram source: %w", err)
	}
	return string(raw), nil
}
