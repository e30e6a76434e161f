package chunker

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// TreeSitterDetector finds function definitions with the tree-sitter C
// grammar. It handles multi-line signatures the regex detector misses. On a
// parse error it falls back to RegexDetector.
type TreeSitterDetector struct{}

func (TreeSitterDetector) Detect(source string) []Boundary {
	content := []byte(source)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil {
		return RegexDetector{}.Detect(source)
	}
	defer tree.Close()

	root := tree.RootNode()
	var out []Boundary
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node == nil || node.Type() != "function_definition" {
			continue
		}
		name := declaratorName(node.ChildByFieldName("declarator"), content)
		if name == "" {
			continue
		}
		out = append(out, Boundary{Line: int(node.StartPoint().Row), Name: name})
	}
	return out
}

// declaratorName descends through pointer and function declarators to the
// identifier naming the function.
func declaratorName(n *sitter.Node, content []byte) string {
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier":
			return string(content[n.StartByte():n.EndByte()])
		case "function_declarator", "pointer_declarator", "parenthesized_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(0)
			}
			n = next
		default:
			return ""
		}
	}
	return ""
}
