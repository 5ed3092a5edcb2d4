package logs

import (
	"os"

	"github.com/RishiGupta12/serial-communication-manager/consts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	level  zap.AtomicLevel
)

func init() {
	var cfg zap.Config
	if IsTest() {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	level = zap.NewAtomicLevelAt(cfg.Level.Level())
	cfg.Level = level

	var err error
	Logger, err = cfg.Build(zap.AddCaller())
	if err != nil {
		panic(err)
	}
}

func IsTest() bool {
	return os.Getenv(consts.Env) == "test"
}

// SetLevel changes the level of Logger and every logger derived from it.
func SetLevel(text string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(text)); err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

// Named returns a child logger tagged with the component name.
func Named(component string) *zap.Logger {
	return Logger.Named(component)
}

func Debug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Logger.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Logger.Error(msg, fields...)
}
