package main

import (
	"os"

	"github.com/drblury/actuator/internal/cli"
)

// Version can be set during build with -ldflags
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
