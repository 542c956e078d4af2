// Package logger wraps zerolog for the camstream components.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Context fields of the log lines.
const (
	CameraField  = "cam"
	SessionField = "sid"
	RoleField    = "role"
	StateField   = "state"

	tagField = "app"
)

type Logger struct {
	logger *zerolog.Logger
}

// NewConsole makes the human-readable logger of the commands.
// Each line starts with the tag of the app, then the camera and
// the session of the line when it has them.
func NewConsole(debug bool, tag string, noColor bool) *Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	out := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    noColor,
		TimeFormat: "15:04:05.000",
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			tagField,
			CameraField,
			SessionField,
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{tagField, CameraField, SessionField},
	}
	l := zerolog.New(out).With().Timestamp().Str(tagField, tag).Logger()
	return &Logger{logger: &l}
}

// NewNop returns a logger that writes nothing.
func NewNop() *Logger { l := zerolog.Nop(); return &Logger{logger: &l} }

func Default() *Logger { return &Logger{logger: &log.Logger} }

// With starts the context of a child logger, see Extend.
func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Extend makes a child logger of the context.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	logger := ctx.Logger()
	return &Logger{logger: &logger}
}

// Level makes a child logger with another minimum level.
func (l *Logger) Level(level zerolog.Level) zerolog.Logger { return l.logger.Level(level) }

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Fatal logs and exits the process with the Msg call.
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }

func (l *Logger) WithLevel(level zerolog.Level) *zerolog.Event { return l.logger.WithLevel(level) }
