package service

import (
	"os"
	"testing"

	"extractlab-go/internal/config"
	"extractlab-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	config.Conf.Run.MaxRetries = 3
	config.Conf.Iteration.AccuracyThreshold = 0.9
	config.Conf.Evaluation.DateLayouts = []string{"2006-01-02"}
	extras := true
	config.Conf.Evaluation.ExtrasInPrecision = &extras
	os.Exit(m.Run())
}
