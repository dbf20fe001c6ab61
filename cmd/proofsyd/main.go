package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"proofsy/internal/config"
	"proofsy/internal/logging"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		logrus.Fatalf("failed to init logging: %v", err)
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init server: %v", err)
	}
	defer app.Close()

	logger.WithFields(logrus.Fields{
		"addr":    cfg.HTTPAddr,
		"storage": app.storageMode,
		"anchor":  cfg.AnchorMode,
	}).Info("proofsyd listening")
	if err := app.server.Run(); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
