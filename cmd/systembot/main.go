package main

import (
	"errors"
	"log"
	"os"

	corecmd "github.com/m3rciful/systembot/core/cmd"
	"github.com/m3rciful/systembot/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		Args:              os.Args[1:],
		ConfigEnvVar:      "SYSTEMBOT_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Bootstrap,
	})
	if errors.Is(err, corecmd.ErrVersionShown) {
		return
	}
	if err != nil {
		log.Fatalf("systembot: %v", err)
	}
}
