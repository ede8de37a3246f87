package main

import (
	"os"

	gemrelaycmder "github.com/papercomputeco/gemrelay/cmd/gemrelay"
)

func main() {
	cmd := gemrelaycmder.NewGemrelayCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
