package main

import "github.com/kvlink/kvlink/cmd"

func main() {
	cmd.Execute()
}
