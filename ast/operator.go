package ast

import "fmt"

// Operator is a binding operator.
type Operator int

const (
	// OpAssign (=) evaluates the expression once at initialization.
	OpAssign Operator = iota
	// OpSubscribe (<<) re-evaluates the expression when its inputs change.
	OpSubscribe
	// OpUpdate (>>) writes attribute changes back into the expression.
	OpUpdate
	// OpDelegate (:=) combines OpSubscribe and OpUpdate.
	OpDelegate
	// OpNotify (::) runs a handler each time the attribute changes.
	OpNotify
)

var opGlyphs = [...]string{
	OpAssign:    "=",
	OpSubscribe: "<<",
	OpUpdate:    ">>",
	OpDelegate:  ":=",
	OpNotify:    "::",
}

// Operators lists every binding operator in declaration order.
var Operators = []Operator{OpAssign, OpSubscribe, OpUpdate, OpDelegate, OpNotify}

func (o Operator) String() string {
	if o >= 0 && int(o) < len(opGlyphs) {
		return opGlyphs[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator maps a glyph to its operator.
func ParseOperator(glyph string) (Operator, bool) {
	for i, g := range opGlyphs {
		if g == glyph {
			return Operator(i), true
		}
	}
	return 0, false
}

// Reads reports whether the operator evaluates its expression to produce
// the attribute value.
func (o Operator) Reads() bool {
	return o == OpAssign || o == OpSubscribe || o == OpDelegate
}

// Writes reports whether the operator pushes attribute changes into its
// expression, which must then be assignable.
func (o Operator) Writes() bool {
	return o == OpUpdate || o == OpDelegate
}
