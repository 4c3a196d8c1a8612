package main

import "github.com/ghostvault/ghostvault/cmd"

func main() {
	cmd.Execute()
}
