package runtime

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes the object tree rooted at o, one object per line, children
// indented under their parent:
//
//	Main(title="Hello", ...)
//	  Label(text="x", ...)
func Dump(w io.Writer, o *Object) error {
	return dump(w, o, 0)
}

func dump(w io.Writer, o *Object, depth int) error {
	var attrs []string
	for _, name := range o.AttrOrder() {
		v, _ := o.Get(name)
		attrs = append(attrs, fmt.Sprintf("%s=%s", name, v.String()))
	}
	if _, err := fmt.Fprintf(w, "%s%s(%s)\n", strings.Repeat("  ", depth), o.typ.name, strings.Join(attrs, ", ")); err != nil {
		return err
	}
	for _, c := range o.children {
		if err := dump(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}
