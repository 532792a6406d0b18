package main

import "github.com/algoease/backend/internal/cli"

func main() {
	cli.Execute()
}
