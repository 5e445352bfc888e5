package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	appNameVar   = "APP_NAME"
	envVar       = "ENV"
	logLevelVar  = "LOG_LEVEL"
	folderEnvVar = "FOLDER"
)

var v = newViper()

func newViper() *viper.Viper {
	vp := viper.New()
	vp.AutomaticEnv()
	return vp
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "App Lock")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func GetEnv(envVar, defaultValue string) string {
	value := v.GetString(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses values such as "15m" or "90s", falling back to the default when unset or zero.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	if !v.IsSet(envVar) {
		return defaultValue
	}
	d := v.GetDuration(envVar)
	if d <= 0 {
		return defaultValue
	}
	return d
}

func GetBoolEnv(envVar string, defaultValue bool) bool {
	if !v.IsSet(envVar) {
		return defaultValue
	}
	return v.GetBool(envVar)
}

func GetIntEnv(envVar string, defaultValue int) int {
	if !v.IsSet(envVar) {
		return defaultValue
	}
	return v.GetInt(envVar)
}
