package main

import "github.com/dotcommander/qloop/cmd"

func main() {
	cmd.Execute()
}
