package services

import "time"

// SetNow overrides the engine clock for tests.
func SetNow(s *Syncer, now func() time.Time) {
	s.now = now
}
