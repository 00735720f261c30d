package main

import "testrig/scenario-engine/cmd"

func main() {
	cmd.Execute()
}
