package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "coursegen"}

	root.AddCommand(serveCMD(), migrateCMD(), workerCMD(), generateCMD())
	_ = root.Execute()
}
