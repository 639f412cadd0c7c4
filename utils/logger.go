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

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

var (
	defaultLevel     = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	logFormat        = EnvDefaultString("LOG_FORMAT", "text")
	logColor         = EnvDefaultBool("LOG_COLOR", true)
	logOutput        io.Writer = os.Stdout
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
)

// ConfigureLogFormat switches loggers created afterwards between "text" and "json".
func ConfigureLogFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		logFormat = "json"
	} else {
		logFormat = "text"
	}
}

// ConfigureLogOutput redirects every registered logger and all loggers
// created afterwards.
func ConfigureLogOutput(w io.Writer) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	logOutput = w
	for _, lg := range loggerRegistry {
		lg.SetOutput(w)
	}
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if lg, ok := loggerRegistry[name]; ok {
		return lg
	}
	l := logrus.New()
	l.SetOutput(logOutput)
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	if logFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		})
		l.AddHook(&nameHook{name: name})
	} else {
		l.SetFormatter(&Log4jColorFormatter{LoggerName: name, Color: logColor, NameWidth: 10})
	}
	loggerRegistry[name] = l
	return l
}

// SetLoggerLevel changes the level of a registered logger. It reports false
// when no logger has that name.
func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

func SetAllLoggersLevel(lvl logrus.Level) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	defaultLevel = lvl
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
}

type nameHook struct{ name string }

func (h *nameHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *nameHook) Fire(e *logrus.Entry) error {
	e.Data["logger"] = h.name
	return nil
}

// Log4jColorFormatter renders "<time> <LEVEL> <pid> --- <name> <file:line> : <msg> k=v".
type Log4jColorFormatter struct {
	LoggerName string
	Color      bool
	NameWidth  int
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteByte(' ')
	b.WriteString(f.colorLevel(fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String())), entry.Level))
	b.WriteByte(' ')
	b.WriteString(f.wrap(fmt.Sprintf("%-6d", os.Getpid()), ansiMagenta))
	b.WriteString(" --- ")
	b.WriteString(f.wrap(fmt.Sprintf("%*s", f.NameWidth, limitRunes(f.LoggerName, f.NameWidth)), ansiCyan))
	if entry.Caller != nil {
		b.WriteString(f.wrap(" "+filepath.Base(entry.Caller.File)+":"+strconv.Itoa(entry.Caller.Line), ansiFaint))
	}
	b.WriteString(" : ")
	b.WriteString(entry.Message)
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

const (
	ansiReset   = "\x1b[0m"
	ansiFaint   = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func (f *Log4jColorFormatter) wrap(s, code string) string {
	if !f.Color {
		return s
	}
	return code + s + ansiReset
}

func (f *Log4jColorFormatter) colorLevel(s string, level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return f.wrap(s, ansiRed)
	case logrus.WarnLevel:
		return f.wrap(s, ansiYellow)
	case logrus.InfoLevel:
		return f.wrap(s, ansiGreen)
	case logrus.DebugLevel:
		return f.wrap(s, ansiBlue)
	default:
		return f.wrap(s, ansiMagenta)
	}
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
