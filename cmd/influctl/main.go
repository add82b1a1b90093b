package main

import (
	"github.com/spf13/cobra"

	"github.com/influai/control-plane/cmd/influctl/cmds"
)

var version = "dev"

func main() {
	rootCmd := cmds.NewRootCmd(version)
	cobra.CheckErr(rootCmd.Execute())
}
