package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "graphsmith-api",
		Usage:                 "Synthesize workflow graphs and instantiate templates over HTTP",
		EnableShellCompletion: true,
		Flags:                 apiFlags(),
		Action:                runAPI,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
