package main

import "github.com/forgeworks/prdpilot/cmd"

func main() {
	cmd.Execute()
}
