// Package ulogger wraps zerolog behind the small structured-logging
// interface used throughout this module, configured through gocore's
// runtime config registry the same way the rest of the stack is.
package ulogger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
)

// Logger is the interface every package in this module logs through.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	New(service string, opts ...Option) Logger
}

type zeroLogger struct {
	zerolog.Logger
	service string
}

// Option configures a Logger constructed with New.
type Option func(*options)

type options struct {
	level      string
	writer     io.Writer
	loggerType string
}

func WithLevel(level string) Option {
	return func(o *options) { o.level = level }
}

func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

func WithLoggerType(loggerType string) Option {
	return func(o *options) { o.loggerType = loggerType }
}

// New constructs a top-level Logger for service. Pretty console output is
// used unless PRETTY_LOGS is set to false via gocore.Config(), matching the
// teacher's convention for local vs. production output.
func New(service string, opts ...Option) Logger {
	o := &options{level: "INFO", writer: os.Stdout, loggerType: "zerolog"}
	for _, opt := range opts {
		opt(o)
	}

	if service == "" {
		service = "pandanode"
	}

	var z zerolog.Logger
	if gocore.Config().GetBool("PRETTY_LOGS", true) {
		z = prettyConsole(service, o.writer)
	} else {
		z = zerolog.New(o.writer).With().
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2).
			Timestamp().
			Logger()
	}

	setLevel(o.level, &z)

	return &zeroLogger{z, service}
}

func (z *zeroLogger) New(service string, opts ...Option) Logger {
	o := &options{level: z.GetLevel().String(), writer: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}
	return New(service, append([]Option{WithLevel(o.level), WithWriter(o.writer)}, opts...)...)
}

func setLevel(level string, z *zerolog.Logger) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		*z = z.Level(zerolog.DebugLevel)
	case "WARN":
		*z = z.Level(zerolog.WarnLevel)
	case "ERROR":
		*z = z.Level(zerolog.ErrorLevel)
	case "FATAL":
		*z = z.Level(zerolog.FatalLevel)
	default:
		*z = z.Level(zerolog.InfoLevel)
	}
}

func prettyConsole(service string, w io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}

	output.FormatTimestamp = func(i interface{}) string {
		parsed, _ := time.Parse(time.RFC3339, i.(string))
		return parsed.Format("15:04:05")
	}
	output.FormatLevel = func(i interface{}) string {
		return fmt.Sprintf("| %-6s|", strings.ToUpper(fmt.Sprintf("%-6s", i)))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-8s| %s", service, i)
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

func (z *zeroLogger) Debugf(format string, args ...interface{}) { z.Logger.Debug().Msgf(format, args...) }
func (z *zeroLogger) Infof(format string, args ...interface{})  { z.Logger.Info().Msgf(format, args...) }
func (z *zeroLogger) Warnf(format string, args ...interface{})  { z.Logger.Warn().Msgf(format, args...) }
func (z *zeroLogger) Errorf(format string, args ...interface{}) { z.Logger.Error().Msgf(format, args...) }
func (z *zeroLogger) Fatalf(format string, args ...interface{}) { z.Logger.Fatal().Msgf(format, args...) }
