package config_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"readiness/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
				convey.So(cfg.Orchestrator.SleepTimeout, convey.ShouldEqual, 8*time.Second)
				convey.So(cfg.Recovery.HRV, convey.ShouldEqual, 0.35)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("READINESS_LOG_LEVEL", "debug")
			_ = os.Setenv("READINESS_ORCHESTRATOR__SLEEP_TIMEOUT", "12s")
			_ = os.Setenv("READINESS_ATHLETE__MAX_HR", "192")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Orchestrator.SleepTimeout, convey.ShouldEqual, 12*time.Second)
				convey.So(cfg.Athlete.MaxHR, convey.ShouldEqual, 192)
				convey.So(cfg.Athlete.RestingHR, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
log_format: console
timezone: UTC
athlete:
  ftp: 250
  resting_hr: 48
training_load:
  min_ctl: 8
orchestrator:
  strain_timeout: 5s
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("READINESS_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should merge the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "console")
				convey.So(cfg.Timezone, convey.ShouldEqual, "UTC")
				convey.So(cfg.Athlete.FTP, convey.ShouldEqual, 250)
				convey.So(cfg.Athlete.RestingHR, convey.ShouldEqual, 48)
				convey.So(cfg.Athlete.MaxHR, convey.ShouldEqual, 185)
				convey.So(cfg.TrainingLoad.MinCTL, convey.ShouldEqual, 8)
				convey.So(cfg.TrainingLoad.MinATL, convey.ShouldEqual, 1)
				convey.So(cfg.Orchestrator.StrainTimeout, convey.ShouldEqual, 5*time.Second)
			})
		})

		convey.Convey("When both file and environment set the same key", func() {
			tmpFile := createTempConfigFile("log_level: warn\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("READINESS_CONFIG", tmpFile)
			_ = os.Setenv("READINESS_LOG_LEVEL", "error")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "error")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("READINESS_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("READINESS_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the merged config fails validation", func() {
			_ = os.Setenv("READINESS_RECOVERY__HRV", "0.9")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "recovery weights")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"READINESS_CONFIG",
		"READINESS_LOG_LEVEL",
		"READINESS_ORCHESTRATOR__SLEEP_TIMEOUT",
		"READINESS_ATHLETE__MAX_HR",
		"READINESS_RECOVERY__HRV",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "readiness-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
