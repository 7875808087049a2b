package main

import "github.com/vhoang/ingest/internal/cli"

func main() {
	cli.Execute()
}
