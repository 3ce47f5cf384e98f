package main

import (
	"os"

	"github.com/wisbric/compute-gateway/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
