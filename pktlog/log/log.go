// Package log is the logging facade for pldwallet.
//
// Log lines are emitted through zerolog. Each line is tagged with the
// subsystem which logged it, the subsystem is the name of the package
// directory of the caller, e.g. "walletsync". Levels can be set globally
// or per subsystem with SetLogLevels.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/lock"
	"github.com/rs/zerolog"
)

// Terminal escapes used by command line help text.
const (
	Bright = "\x1b[1m"
	Reset  = "\x1b[0m"
)

var Err er.ErrorType = er.NewErrorType("log.Err")

var ErrInvalidLevel = Err.CodeWithDetail("ErrInvalidLevel",
	"invalid debug level, expecting one of trace, debug, info, warn, error, critical, off")

type logger struct {
	zl   zerolog.Logger
	def  zerolog.Level
	subs map[string]zerolog.Level
}

func (l *logger) levelFor(sub string) zerolog.Level {
	if lvl, ok := l.subs[sub]; ok {
		return lvl
	}
	return l.def
}

var state = lock.NewGenRwLock(logger{
	zl:   newConsole(os.Stderr),
	def:  zerolog.InfoLevel,
	subs: map[string]zerolog.Level{},
}, "log")

func newConsole(w io.Writer) zerolog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    noColor,
		TimeFormat: "2006-01-02 15:04:05.000",
	}
	return zerolog.New(cw).With().Timestamp().Logger()
}

// SetOutput sends human readable log lines to w.
func SetOutput(w io.Writer) {
	_ = state.W().In(func(l *logger) er.R {
		l.zl = newConsole(w)
		return nil
	})
}

// SetJSONOutput sends one JSON object per log line to w.
func SetJSONOutput(w io.Writer) {
	_ = state.W().In(func(l *logger) er.R {
		l.zl = zerolog.New(w).With().Timestamp().Logger()
		return nil
	})
}

func parseLevel(s string) (zerolog.Level, er.R) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	case "off":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, ErrInvalidLevel.New(s, nil)
}

// SetLogLevels parses a level spec and applies it. The spec is either a
// single level which applies to everything, or a comma separated list of
// level and subsystem=level entries, e.g. "info,walletsync=debug".
// An empty spec is a no-op.
func SetLogLevels(spec string) er.R {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	def := zerolog.NoLevel
	subs := map[string]zerolog.Level{}
	for _, part := range strings.Split(spec, ",") {
		if sub, lvl, ok := strings.Cut(part, "="); ok {
			sub = strings.TrimSpace(sub)
			if sub == "" {
				return ErrInvalidLevel.New(part, nil)
			}
			l, err := parseLevel(lvl)
			if err != nil {
				return err
			}
			subs[sub] = l
			continue
		}
		l, err := parseLevel(part)
		if err != nil {
			return err
		}
		def = l
	}
	return state.W().In(func(l *logger) er.R {
		if def != zerolog.NoLevel {
			l.def = def
		}
		for k, v := range subs {
			l.subs[k] = v
		}
		return nil
	})
}

func subsystem(skip int) string {
	_, file, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return "???"
	}
	return filepath.Base(filepath.Dir(file))
}

func emit(lvl zerolog.Level, msg func() string) {
	sub := subsystem(2)
	_ = state.R().In(func(l *logger) er.R {
		if lvl < l.levelFor(sub) {
			return nil
		}
		// zerolog's fatal level exits the process.
		if lvl == zerolog.FatalLevel {
			l.zl.WithLevel(zerolog.ErrorLevel).Bool("critical", true).
				Str("sub", sub).Msg(msg())
			return nil
		}
		l.zl.WithLevel(lvl).Str("sub", sub).Msg(msg())
		return nil
	})
}

func sprintf(format string, args []interface{}) func() string {
	return func() string { return fmt.Sprintf(format, args...) }
}

func sprint(args []interface{}) func() string {
	return func() string { return fmt.Sprint(args...) }
}

func Tracef(format string, args ...interface{})    { emit(zerolog.TraceLevel, sprintf(format, args)) }
func Debugf(format string, args ...interface{})    { emit(zerolog.DebugLevel, sprintf(format, args)) }
func Infof(format string, args ...interface{})     { emit(zerolog.InfoLevel, sprintf(format, args)) }
func Warnf(format string, args ...interface{})     { emit(zerolog.WarnLevel, sprintf(format, args)) }
func Errorf(format string, args ...interface{})    { emit(zerolog.ErrorLevel, sprintf(format, args)) }
func Criticalf(format string, args ...interface{}) { emit(zerolog.FatalLevel, sprintf(format, args)) }

func Trace(args ...interface{}) { emit(zerolog.TraceLevel, sprint(args)) }
func Debug(args ...interface{}) { emit(zerolog.DebugLevel, sprint(args)) }
func Info(args ...interface{})  { emit(zerolog.InfoLevel, sprint(args)) }
func Warn(args ...interface{})  { emit(zerolog.WarnLevel, sprint(args)) }
func Error(args ...interface{}) { emit(zerolog.ErrorLevel, sprint(args)) }

// C defers building a log argument until the line is actually written.
//
//	log.Tracef("Got [%v]", log.C(func() string { return spew.Sdump(x) }))
type C func() string

func (c C) String() string {
	return c()
}
