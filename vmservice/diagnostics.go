package vmservice

// DiagnosticsNode is one node of the Flutter inspector's widget tree. Trees
// nest as deep as the app's widget hierarchy.
type DiagnosticsNode struct {
	CreationLocation      *CreationLocation  `json:"creationLocation,omitempty"`
	Description           string             `json:"description"`
	Name                  string             `json:"name,omitempty"`
	Type                  string             `json:"type,omitempty"`
	Style                 string             `json:"style,omitempty"`
	ValueID               string             `json:"valueId,omitempty"`
	ObjectID              string             `json:"objectId,omitempty"`
	WidgetRuntimeType     string             `json:"widgetRuntimeType,omitempty"`
	Children              []*DiagnosticsNode `json:"children,omitempty"`
	Properties            []*DiagnosticsNode `json:"properties,omitempty"`
	HasChildren           bool               `json:"hasChildren,omitempty"`
	CreatedByLocalProject bool               `json:"createdByLocalProject,omitempty"`
	Stateful              bool               `json:"stateful,omitempty"`
}

// CreationLocation is where a widget was constructed.
type CreationLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Walk visits n and its children depth first. Returning false from fn skips
// the node's children.
func (n *DiagnosticsNode) Walk(fn func(node *DiagnosticsNode, depth int) bool) {
	if n == nil {
		return
	}
	type frame struct {
		node  *DiagnosticsNode
		depth int
	}
	// Iterative so arbitrarily deep trees do not grow the goroutine stack.
	stack := []frame{{node: n}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(f.node, f.depth) {
			continue
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			if c := f.node.Children[i]; c != nil {
				stack = append(stack, frame{node: c, depth: f.depth + 1})
			}
		}
	}
}

// Count returns the number of nodes in the tree.
func (n *DiagnosticsNode) Count() int {
	count := 0
	n.Walk(func(*DiagnosticsNode, int) bool {
		count++
		return true
	})
	return count
}

// Depth returns the depth of the deepest node; a single node has depth 0.
func (n *DiagnosticsNode) Depth() int {
	deepest := 0
	n.Walk(func(_ *DiagnosticsNode, d int) bool {
		deepest = max(deepest, d)
		return true
	})
	return deepest
}
