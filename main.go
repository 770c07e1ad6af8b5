package main

import "quarry/cmd"

func main() {
	cmd.Execute()
}
