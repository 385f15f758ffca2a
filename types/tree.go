package types

// TestNode is a node in the host's hierarchical test tree. A node is either a
// leaf (Case is non-nil and maps 1:1 to a test case descriptor) or a group
// (ordered sequence of child nodes). The tree is assumed acyclic.
type TestNode struct {
	ID     string
	Name   string
	Status NodeStatus

	Case     *TestCaseDescriptor
	Children []*TestNode
	Parent   *TestNode
}

// NewGroupNode creates a group node with no children.
func NewGroupNode(id, name string) *TestNode {
	return &TestNode{ID: id, Name: name, Status: NodeStatusReady}
}

// NewCaseNode creates a leaf node and its descriptor. The descriptor carries
// a back-reference to the node.
func NewCaseNode(id, name string) *TestNode {
	n := &TestNode{ID: id, Name: name, Status: NodeStatusReady}
	n.Case = &TestCaseDescriptor{ID: id, Name: name, Node: n}
	return n
}

// AddChild appends child to the node's ordered children and sets its parent.
func (n *TestNode) AddChild(child *TestNode) *TestNode {
	child.Parent = n
	n.Children = append(n.Children, child)
	return n
}

// IsLeaf reports whether the node maps directly to a test case.
func (n *TestNode) IsLeaf() bool {
	return n.Case != nil
}

// Flatten walks the tree rooted at n depth-first in pre-order and returns the
// descriptors of all leaves in traversal order. Calling it twice on an
// unmodified tree yields identical output.
func Flatten(n *TestNode) []TestCaseDescriptor {
	if n == nil {
		return nil
	}
	var cases []TestCaseDescriptor
	flattenInto(n, &cases)
	return cases
}

func flattenInto(n *TestNode, cases *[]TestCaseDescriptor) {
	if n.IsLeaf() {
		*cases = append(*cases, *n.Case)
		return
	}
	for _, child := range n.Children {
		flattenInto(child, cases)
	}
}

// Walk traverses the tree in pre-order calling visitor for each node.
// Traversal of a subtree stops when visitor returns false for its root.
func (n *TestNode) Walk(visitor func(*TestNode) bool) {
	if n == nil || !visitor(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(visitor)
	}
}

// ResetRunning walks the tree and resets every node still marked running back
// to ready, so a canceled run never leaves stale running indicators. It
// returns the number of nodes reset.
func ResetRunning(root *TestNode) int {
	reset := 0
	root.Walk(func(n *TestNode) bool {
		if n.Status == NodeStatusRunning {
			n.Status = NodeStatusReady
			reset++
		}
		return true
	})
	return reset
}

// IndexByID returns a lookup of every leaf node in the tree keyed by test
// case id.
func IndexByID(root *TestNode) map[string]*TestNode {
	index := make(map[string]*TestNode)
	root.Walk(func(n *TestNode) bool {
		if n.IsLeaf() {
			index[n.ID] = n
		}
		return true
	})
	return index
}
