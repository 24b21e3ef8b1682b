// Package main is the entry point for the CyPlan agent service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/cyplan/cmd/cyplan-agent/app"
)

func main() {
	app.NewApp().Run()
}
