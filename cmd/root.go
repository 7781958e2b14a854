package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "sira"}

	root.AddCommand(workerCMD(), migrateCMD(), researchCMD(), retrieveCMD(), jobsCMD())
	_ = root.Execute()
}
