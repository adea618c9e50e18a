package main

import "github.com/stankur/devfeed/internal/cli"

func main() {
	cli.Execute()
}
