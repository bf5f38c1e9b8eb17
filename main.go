package main

import (
	"github.com/gridsync/gridsync/cmd"
	"github.com/gridsync/gridsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
