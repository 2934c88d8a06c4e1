package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/speedster/speedster/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
