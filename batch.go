package main

import (
	"github.com/caesium-cloud/batch/cmd"
	"github.com/caesium-cloud/batch/pkg/env"
	"github.com/caesium-cloud/batch/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("batch failure", "error", err)
	}
}
