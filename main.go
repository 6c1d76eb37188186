package main

import (
	"os"

	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/server"
)

func main() {
	if err := server.Run(); err != nil {
		logger.Error("run server error", "error", err)
		os.Exit(1)
	}
}
