// The main package for the catalogd executable.
package main

import (
	"github.com/rtparts/catalogd/cmd"
)

func main() {
	cmd.Execute()
}
