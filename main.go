package main

import (
	"embed"
	"os"

	"github.com/msalah0e/canopy/cmd"
)

//go:embed samples/*
var samplesFS embed.FS

func main() {
	cmd.SetSamplesFS(samplesFS)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
