package main

import (
	"github.com/mchmarny/metro/pkg/cli"
)

func main() {
	cli.Execute()
}
