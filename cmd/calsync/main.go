package main

import (
	"context"
	"os"

	"calsync/internal/cli"
	appLog "calsync/internal/log"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		appLog.Default().Error("calsync failed", err)
		os.Exit(1)
	}
}
