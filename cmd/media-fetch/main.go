package main

import (
	"go-media-fetch/cmd/media-fetch/cmd"
)

func main() {
	// Execute the root command (defined in cmd/root.go)
	cmd.Execute()
}
