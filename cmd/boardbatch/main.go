package main

import "broadcast-board/internal/cli"

func main() {
	cli.Execute()
}
