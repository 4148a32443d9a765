package main

import "listing-ledger/internal/cli"

func main() {
	cli.Execute()
}
