package main

import "github.com/amacgov/revenue-collection/cmd"

func main() {
	cmd.Execute()
}
