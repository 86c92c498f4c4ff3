package main

import (
	"metal-rates-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
