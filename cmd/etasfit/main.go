package main

import (
	"github.com/quakelab/etasfit/pkg/cmd"
)

func main() {
	cmd.Execute()
}
