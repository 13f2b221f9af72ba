package main

import "github.com/oshokin/snapup/cmd/snapup-packager/cmd"

func main() {
	cmd.Execute()
}
