package main

import "fuel-watchtower/internal/cli"

func main() {
	cli.Execute()
}
