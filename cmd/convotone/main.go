package main

import "github.com/ent0n29/convotone/internal/cli"

func main() {
	cli.Execute()
}
