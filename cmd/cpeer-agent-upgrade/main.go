package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
	"k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/agentupgrade/cmd/cpeer-agent-upgrade/app"
)

func main() {
	ctx := server.SetupSignalContext()
	if err := app.NewUpgradeCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
