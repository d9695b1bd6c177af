package main

import "github.com/batisback/loyverse-daily-sync/internal/cli"

func main() {
	cli.Execute()
}
