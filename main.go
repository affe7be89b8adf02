package main

import (
	"github.com/Candyboy02/bridge-link/cmd"
	"github.com/Candyboy02/bridge-link/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
