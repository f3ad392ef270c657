package main

import (
	"os"

	"reap/internal/reap"
)

func main() {
	os.Exit(reap.Main())
}
