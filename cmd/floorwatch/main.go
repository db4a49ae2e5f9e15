package main

import "price-floor-alerts/internal/cli"

func main() {
	cli.Execute()
}
