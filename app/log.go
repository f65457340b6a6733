package app

import (
	"github.com/hashicorp/go-hclog"
	"github.com/moontrade/mersenne/logger"
)

func logInit(conf Config) (hclog.Logger, error) {
	if err := logger.SetLevel(conf.LogLevel); err != nil {
		return nil, err
	}
	if conf.LogOutput != nil {
		logger.SetConsoleOutput(conf.LogOutput, false)
	}
	logger.Notice("starting %s", versline(conf))
	return logger.NewRaftLogger(conf.LogLevel), nil
}
