package main

import "github.com/forPelevin/cliper/internal/cli"

func main() {
	cli.Main()
}
