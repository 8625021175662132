package main

import (
	"log"

	"github.com/flarebyte/almsync/cmd"
	"github.com/flarebyte/almsync/internal/cli"
)

func main() {
	log.SetFlags(0)
	if err := cmd.Execute(); err != nil {
		log.Fatal("Error: " + cli.DescribeError(err))
	}
}
