package main

import (
	"context"
	"os"

	"github.com/Christopher-Hayes/mutter-desktop/cmd/desktopctl/commands"
	"github.com/Christopher-Hayes/mutter-desktop/internal/logging"
)

func main() {
	if err := commands.NewRoot().ExecuteContext(context.Background()); err != nil {
		logging.Errorf("%v", err)
		os.Exit(1)
	}
}
