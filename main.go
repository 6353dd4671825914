package main

import "github.com/invergent-ai/surogate-studio-sub002/cmd"

// Version can be set during build with -ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
