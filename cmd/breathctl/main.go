package main

import "breathing-analytics/internal/cli"

func main() {
	cli.Execute()
}
