// Package obslog provides the leveled log sink used across CronSentinel.
// It wraps zerolog with a console formatter that produces the
// "[YYYY-MM-DD HH:MM:SS] LEVEL: message" line shape operators expect.
package obslog

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// timeLayout is the required "YYYY-MM-DD HH:MM:SS" stamp.
const timeLayout = "2006-01-02 15:04:05"

// New builds a zerolog.Logger writing to w in the required line format.
// verbose lowers the minimum level to Debug; otherwise Info is the floor.
func New(w io.Writer, component string, verbose bool) zerolog.Logger {
	zerolog.TimeFieldFormat = timeLayout

	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: timeLayout,
		FormatLevel: func(i interface{}) string {
			lvl, _ := i.(string)
			return strings.ToUpper(lvl) + ":"
		},
		FormatTimestamp: func(i interface{}) string {
			s, _ := i.(string)
			return "[" + s + "]"
		},
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(cw).Level(level).With().Timestamp().Logger()
	if component != "" {
		logger = logger.With().Str("component", component).Logger()
	}
	return logger
}
