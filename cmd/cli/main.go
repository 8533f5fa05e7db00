package main

import (
	"github.com/mchmarny/hscore/pkg/cli"
)

func main() {
	cli.Execute()
}
