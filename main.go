package main

import (
	"os"

	"github.com/iksnae/agent-sessions/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
