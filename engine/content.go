package engine

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/meikuraledutech/workflow"
)

// PlainText returns the text content of rich instructions with markup
// removed and whitespace collapsed.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Tags separate words ("<p>a</p><p>b</p>" is "a b").
			sb.WriteByte(' ')
		}
	}
}

// deriveContent recomputes the fields projected from Instructions.
func deriveContent(d *workflow.NodeData) {
	d.InstructionsDetailed = PlainText(d.Instructions)
	d.HasInstructions = d.InstructionsDetailed != ""
}

func refs(r []workflow.Ref) []workflow.Ref {
	if r == nil {
		return []workflow.Ref{}
	}
	return append([]workflow.Ref{}, r...)
}
