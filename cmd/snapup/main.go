package main

import "github.com/oshokin/snapup/cmd/snapup/cmd"

func main() {
	cmd.Execute()
}
