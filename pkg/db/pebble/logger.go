package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
)

// logger routes pebble's internal logging to zerolog.
type logger struct {
	log zerolog.Logger
}

func newLogger(log zerolog.Logger) pebble.Logger {
	return &logger{log: log}
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

// Fatalf must not return.
func (l *logger) Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.log.WithLevel(zerolog.FatalLevel).Msg(msg)
	panic(msg)
}

func newEventListener(log zerolog.Logger) *pebble.EventListener {
	return &pebble.EventListener{
		BackgroundError: func(err error) {
			log.Error().Err(err).Msg("background error")
		},
		FlushEnd: func(info pebble.FlushInfo) {
			if info.Err != nil {
				log.Error().Err(info.Err).Int("job", info.JobID).Msg("flush failed")
				return
			}
			log.Debug().Int("job", info.JobID).Dur("duration", info.Duration).Msg("flush finished")
		},
		CompactionEnd: func(info pebble.CompactionInfo) {
			if info.Err != nil {
				log.Error().Err(info.Err).Int("job", info.JobID).Msg("compaction failed")
				return
			}
			log.Debug().Int("job", info.JobID).Str("reason", info.Reason).Msg("compaction finished")
		},
		WriteStallBegin: func(info pebble.WriteStallBeginInfo) {
			log.Warn().Str("reason", info.Reason).Msg("write stall")
		},
		WriteStallEnd: func() {
			log.Info().Msg("write stall cleared")
		},
	}
}
