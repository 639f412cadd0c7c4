/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tomoncle/datajpa/utils"
)

const loggerName = "DATABASE"

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var logLevelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < LogLevelDebug || int(l) >= len(logLevelNames) {
		return logLevelNames[LogLevelDebug]
	}
	return logLevelNames[l]
}

// Logger takes a message followed by alternating key/value pairs.
type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// InitLogger installs log as the package logger. Only the first call wins.
func InitLogger(log Logger) {
	if log == nil {
		return
	}
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = log
	}
}

func GetLogger() Logger {
	globalLoggerMu.RLock()
	l := globalLogger
	globalLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	dl := NewDefaultLogger()
	globalLoggerMu.Lock()
	if globalLogger == nil {
		globalLogger = dl
	}
	l = globalLogger
	globalLoggerMu.Unlock()
	return l
}

// DefaultLogger writes through the shared logrus logger named DATABASE.
type DefaultLogger struct {
	logger *utils.Logger
}

func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{logger: utils.NewLogger(loggerName)}
}

func (l *DefaultLogger) with(fields []interface{}) *logrus.Entry {
	out := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		out[fmt.Sprint(fields[i])] = fields[i+1]
	}
	return l.logger.WithFields(out)
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) { l.with(fields).Debug(msg) }
func (l *DefaultLogger) Info(msg string, fields ...interface{})  { l.with(fields).Info(msg) }
func (l *DefaultLogger) Warn(msg string, fields ...interface{})  { l.with(fields).Warn(msg) }
func (l *DefaultLogger) Error(msg string, fields ...interface{}) { l.with(fields).Error(msg) }

func (l *DefaultLogger) SetLevel(level LogLevel) {
	utils.SetLoggerLevel(loggerName, strings.ToLower(level.String()))
}

// ZapLogger adapts a zap logger for applications that already log with zap.
type ZapLogger struct {
	level  zap.AtomicLevel
	logger *zap.SugaredLogger
}

// NewZapLogger builds a production zap logger at info level.
func NewZapLogger() (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	lg, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{level: cfg.Level, logger: lg.Named(strings.ToLower(loggerName)).Sugar()}, nil
}

// WrapZapLogger adapts lg. Level changes through SetLevel only take effect
// when level is the AtomicLevel lg was built with.
func WrapZapLogger(lg *zap.Logger, level zap.AtomicLevel) *ZapLogger {
	return &ZapLogger{level: level, logger: lg.Sugar()}
}

var zapLevels = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

func (l *ZapLogger) SetLevel(level LogLevel) {
	if zl, ok := zapLevels[level]; ok {
		l.level.SetLevel(zl)
	}
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) { l.logger.Debugw(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...interface{})  { l.logger.Infow(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...interface{})  { l.logger.Warnw(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...interface{}) { l.logger.Errorw(msg, fields...) }

// Sync flushes buffered zap output.
func (l *ZapLogger) Sync() error { return l.logger.Sync() }
