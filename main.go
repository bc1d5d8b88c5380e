package main

import (
	"metamirror/cmd"
)

func main() {
	cmd.Execute()
}
