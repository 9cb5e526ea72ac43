package main

import (
	"go.uber.org/fx"

	"github.com/gavelhouse/gavel/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
