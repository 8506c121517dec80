package main

import "rootstrap/internal/cli"

func main() {
	cli.Execute()
}
