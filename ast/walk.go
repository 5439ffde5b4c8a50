package ast

// Walk visits n and its descendants depth-first. fn returning false skips
// the children of the node it was called with.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Module:
		walkList(n.Body, fn)
	case *EnamlDef:
		if n.BaseType != nil {
			Walk(n.BaseType, fn)
		}
		walkList(n.Body, fn)
	case *ChildDecl:
		Walk(n.Type, fn)
		walkList(n.Body, fn)
	case *Template:
		walkList(n.Body, fn)
	case *AttrDecl:
		if n.Type != nil {
			Walk(n.Type, fn)
		}
		if n.Default != nil {
			Walk(n.Default, fn)
		}
	case *Binding:
		if n.Expr != nil {
			Walk(n.Expr, fn)
		}
		for _, h := range n.Handler {
			Walk(h, fn)
		}
	}
}

func walkList(nodes []Node, fn func(Node) bool) {
	for _, c := range nodes {
		Walk(c, fn)
	}
}
