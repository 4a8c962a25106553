package pebble

import (
	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"github.com/eigerco/strata/pkg/db/engine"
)

// Snapshot is a pebble snapshot handle.
type Snapshot struct {
	snap *pebble.Snapshot
	log  zerolog.Logger
}

func (s *Snapshot) Release() {
	if s.snap == nil {
		return
	}
	if err := s.snap.Close(); err != nil {
		s.log.Warn().Err(err).Msg("release snapshot")
	}
	s.snap = nil
}

func asSnapshot(s engine.Snapshot) (*pebble.Snapshot, error) {
	ps, ok := s.(*Snapshot)
	if !ok {
		return nil, engine.NewStatus(engine.CodeInvalidArgument, "snapshot %T was not created by the pebble engine", s)
	}
	if ps.snap == nil {
		return nil, engine.NewStatus(engine.CodeInvalidArgument, "snapshot has been released")
	}
	return ps.snap, nil
}
