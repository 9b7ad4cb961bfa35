package main

import "github.com/mcoot/escaperoom/internal/cli"

func main() {
	cli.Execute()
}
