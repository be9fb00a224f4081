// Package main is the entry point for the compliance analysis service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/compliance-x/cmd/compliance/app"
	_ "github.com/kart-io/compliance-x/pkg/llm/ollama"
	_ "github.com/kart-io/compliance-x/pkg/llm/openai"
)

func main() {
	app.NewApp().Run()
}
