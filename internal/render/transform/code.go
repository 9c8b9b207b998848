package transform

import (
	"bytes"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/util"
)

// CodeWrapper returns a wrapper renderer for fenced code blocks the highlighter
// could not handle: the block body is emitted HTML-escaped inside a generic
// pre/code pair tagged with the declared language, which may be empty.
// Highlighted blocks keep the highlighter's own chroma wrappers.
func CodeWrapper() highlighting.WrapperRenderer {
	return func(w util.BufWriter, ctx highlighting.CodeBlockContext, entering bool) {
		if ctx.Highlighted() {
			return
		}

		lang, _ := ctx.Language()
		if entering {
			_, _ = w.WriteString("<pre><code")
			if len(bytes.TrimSpace(lang)) > 0 {
				_, _ = w.WriteString(` class="language-`)
				_, _ = w.Write(util.EscapeHTML(lang))
				_, _ = w.WriteString(`"`)
			}
			_, _ = w.WriteString(">")
			return
		}
		_, _ = w.WriteString("</code></pre>\n")
	}
}
