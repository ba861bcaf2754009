package credit

import (
	"time"

	"github.com/go-co-op/gocron"
)

// Sweeper periodically re-drives every transaction still pending
// verification. A payment that confirms after a drive exhausted its
// attempt budget gets credited on the next sweep; the verified guard in
// the drive makes re-driving safe.
type Sweeper struct {
	core  *Core
	sched *gocron.Scheduler
}

// NewSweeper constructs a sweeper running at the specified interval.
func NewSweeper(core *Core, interval time.Duration) (*Sweeper, error) {
	s := Sweeper{
		core:  core,
		sched: gocron.NewScheduler(time.UTC),
	}

	if _, err := s.sched.Every(interval).Do(s.sweep); err != nil {
		return nil, err
	}

	return &s, nil
}

// Start begins sweeping in the background.
func (s *Sweeper) Start() {
	s.sched.StartAsync()
}

// Stop halts the sweep schedule. A sweep in progress runs to completion.
func (s *Sweeper) Stop() {
	s.sched.Stop()
}

// sweep signals a drive for every pending transaction.
func (s *Sweeper) sweep() {
	txs, err := s.core.PendingTransactions()
	if err != nil {
		s.core.log.Errorw("credit: sweeper", "ERROR", err)
		return
	}

	if len(txs) == 0 {
		return
	}

	s.core.log.Infow("credit: sweeper: re-driving pending transactions", "count", len(txs))
	for _, t := range txs {
		s.core.SignalDrive(t.TxID)
	}
}
