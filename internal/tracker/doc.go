package tracker

import "strings"

// DocNode is the recursive rich-text document shape Jira-style APIs use
// for descriptions and comments.
type DocNode struct {
    Type    string    `json:"type,omitempty"`
    Version int       `json:"version,omitempty"`
    Text    string    `json:"text,omitempty"`
    Content []DocNode `json:"content,omitempty"`
}

// FlattenDoc reduces a rich-text document to plain text: text nodes are
// concatenated in order and every paragraph contributes a trailing
// newline. The result is trimmed of surrounding whitespace.
func FlattenDoc(doc *DocNode) string {
    if doc == nil { return "" }
    var b strings.Builder
    flatten(doc, &b)
    return strings.TrimSpace(b.String())
}

func flatten(n *DocNode, b *strings.Builder) {
    if n.Text != "" { b.WriteString(n.Text) }
    for i := range n.Content { flatten(&n.Content[i], b) }
    if n.Type == "paragraph" { b.WriteString("\n") }
}

// WrapText builds the inverse document: one paragraph holding a single
// text node, so FlattenDoc(WrapText(s)) == s for plain single-paragraph
// input.
func WrapText(text string) DocNode {
    return DocNode{
        Type:    "doc",
        Version: 1,
        Content: []DocNode{{
            Type:    "paragraph",
            Content: []DocNode{{Type: "text", Text: text}},
        }},
    }
}
