package runtime

import (
	"go.starlark.net/starlark"

	"github.com/rubiojr/enaml/modules"
)

// WidgetsModule is the import name of the widget set.
const WidgetsModule = "enaml.widgets.api"

var (
	// Widget is the root of the widget hierarchy.
	Widget = NewType("Widget", nil,
		Attr("name", starlark.String("")),
		Attr("visible", starlark.True),
		Attr("enabled", starlark.True),
	)
	Window    = NewType("Window", Widget, Attr("title", starlark.String("")))
	Container = NewType("Container", Widget)
	Label     = NewType("Label", Widget, Attr("text", starlark.String("")))
	Field     = NewType("Field", Widget,
		Attr("text", starlark.String("")),
		Attr("placeholder", starlark.String("")),
	)
	PushButton = NewType("PushButton", Widget,
		Attr("text", starlark.String("")),
		Event("clicked"),
	)
	CheckBox = NewType("CheckBox", Widget,
		Attr("text", starlark.String("")),
		Attr("checked", starlark.False),
		Event("toggled"),
	)
)

func widgetMembers() starlark.StringDict {
	d := make(starlark.StringDict)
	for _, t := range []*Type{Widget, Window, Container, Label, Field, PushButton, CheckBox} {
		d[t.name] = t
	}
	return d
}

func init() {
	modules.Register(&modules.Module{
		Name:    WidgetsModule,
		Doc:     "Declarative widget types: Window, Container, Label, Field, PushButton, CheckBox.",
		Members: widgetMembers,
	})
}
