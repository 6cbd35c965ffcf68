// The main package for the echochat executable.
package main

import "github.com/echochat/echochat/cmd"

func main() {
	cmd.Execute()
}
