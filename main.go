package main

import "multicam/cmd"

func main() {
	cmd.Execute()
}
