package main

import "github.com/intellsearch/intell/cmd"

func main() {
	cmd.Execute()
}
