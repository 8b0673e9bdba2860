package main

import (
	"flag"
	"os"
	"path"

	"github.com/qbridge-dev/qbridge/internal/cmd"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/logging"
	"github.com/qbridge-dev/qbridge/internal/util"
	log "github.com/sirupsen/logrus"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var login string
	var noBrowser bool
	var configPath string

	flag.StringVar(&login, "login", "", "Login to an identity provider (okta or salesforce)")
	flag.BoolVar(&noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	flag.StringVar(&configPath, "config", "", "Configure File Path")

	flag.Parse()

	if configPath == "" {
		wd, errWd := os.Getwd()
		if errWd != nil {
			log.Fatalf("failed to get working directory: %v", errWd)
		}
		configPath = path.Join(wd, "config.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if errLogOutput := logging.ConfigureLogOutput(cfg.LoggingToFile); errLogOutput != nil {
		log.Fatalf("failed to configure log output: %v", errLogOutput)
	}
	util.SetLogLevel(cfg)

	if login != "" {
		cmd.DoLogin(cfg, login, &cmd.LoginOptions{NoBrowser: noBrowser})
	} else {
		cmd.StartService(cfg, configPath)
	}
}
