package main

import (
	"CrateFM/cmd"
)

func main() {
	cmd.Execute()
}
