package logging

import (
	"time"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region round-entry
// RoundEntry is a single row in the round_log table: the evidence behind one
// committed decision plus the decision's key and red flag.
type RoundEntry struct {
	RunID     string
	Step      int
	Key       string
	RedFlag   mdap.Reason
	Round     mdap.Round
	CreatedAt time.Time
}

// #endregion round-entry
