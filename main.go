package main

import (
	"github.com/rubiojr/enaml/cmd"
)

var version = "v0.1.0"

func main() {
	cmd.Execute(version)
}
