package main

import "github.com/deweblabs/txrelay/internal/cli"

func main() {
	cli.Execute()
}
