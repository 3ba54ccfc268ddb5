package printer

import (
	chtl "github.com/chtl-lang/chtl/internal"
	json "github.com/go-json-experiment/json"
)

// DebugNode is the JSON-serializable shadow of chtl.Node that DEBUG_MODE
// dumps, the way the teacher's PrintToJSON shadows *astro.Node into
// ASTNode rather than exporting the live tree with its parent back-edges
// (which would make json.Marshal recurse forever).
type DebugNode struct {
	Type     string      `json:"type"`
	Tag      string      `json:"tag,omitempty"`
	Data     string      `json:"data,omitempty"`
	Classes  []string    `json:"classes,omitempty"`
	ID       string      `json:"id,omitempty"`
	Attr     []DebugAttr `json:"attr,omitempty"`
	Children []DebugNode `json:"children,omitempty"`
	Position DebugPos    `json:"position"`
}

type DebugAttr struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

type DebugPos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

func toDebugNode(n *chtl.Node) DebugNode {
	d := DebugNode{
		Type:    n.Type.String(),
		Tag:     n.Tag,
		Data:    n.Data,
		Classes: n.Classes,
		ID:      n.ID,
		Position: DebugPos{
			Line:   n.Pos.Line,
			Column: n.Pos.Column,
			Offset: n.Pos.Offset,
		},
	}
	for _, a := range n.Attr {
		d.Attr = append(d.Attr, DebugAttr{Key: a.Key, Val: a.Val})
	}
	for _, c := range n.Children() {
		d.Children = append(d.Children, toDebugNode(c))
	}
	return d
}

// DumpJSON renders doc as the DEBUG_MODE AST dump (spec.md §4.I
// "DEBUG_MODE"). The dump is not one of the three generated outputs.
// Generate does not call it, and config.DebugMode does not trigger it.
func DumpJSON(doc *chtl.Node) ([]byte, error) {
	return json.Marshal(toDebugNode(doc))
}
