// Package main is the entry point for the CyPlan document ingestion CLI.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/cyplan/cmd/cyplan-ingest/app"
)

func main() {
	app.NewApp().Run()
}
