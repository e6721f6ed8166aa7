package main

import "github.com/becutandavid/podcasts-backend/internal/cli"

func main() {
	cli.Execute()
}
