package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
	"k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/voicepeer/cmd/cpeer-voice-agent/app"
)

func main() {
	ctx := server.SetupSignalContext()
	if err := app.NewVoiceAgentCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
