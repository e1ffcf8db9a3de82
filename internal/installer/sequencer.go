package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"weft/internal/backend"
	"weft/internal/logging"
	"weft/internal/services"
)

// LockFileName is created in the work dir while a sequencer runs.
const LockFileName = ".weft-install.lock"

const lockRetryDelay = 250 * time.Millisecond

// Sequencer runs installers in order, stopping at the first failure.
type Sequencer struct {
	installers []Installer
	logger     *slog.Logger
}

// New builds a sequencer. A non-nil enterprise installer runs before the defaults.
func New(enterprise Installer, defaults ...Installer) *Sequencer {
	installers := make([]Installer, 0, len(defaults)+1)
	if enterprise != nil {
		installers = append(installers, enterprise)
	}
	for _, inst := range defaults {
		if inst != nil {
			installers = append(installers, inst)
		}
	}
	return &Sequencer{installers: installers, logger: logging.NewNop()}
}

// SetLogger replaces the sequencer logger.
func (s *Sequencer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	s.logger = logging.NewComponentLogger(logger, "installer")
}

// Installers returns the installer names in execution order.
func (s *Sequencer) Installers() []string {
	names := make([]string, 0, len(s.installers))
	for _, inst := range s.installers {
		names = append(names, inst.Name())
	}
	return names
}

// Execute runs every installer against client, reading definition files
// from workDir. Concurrent runs against the same work dir are serialized.
func (s *Sequencer) Execute(ctx context.Context, client backend.Client, workDir string) (Report, error) {
	var report Report
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return report, services.Wrap(services.ErrConfiguration, "installer", "prepare", "create work dir", err)
	}
	lockPath := filepath.Join(workDir, LockFileName)
	lock := flock.New(lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return report, fmt.Errorf("acquire install lock %s: %w", lockPath, err)
	}
	if !locked {
		return report, fmt.Errorf("acquire install lock %s: not acquired", lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("install lock release failed",
				logging.String("lock", lockPath),
				logging.Error(err),
			)
		}
	}()

	for _, inst := range s.installers {
		started := time.Now()
		if err := inst.Install(ctx, client, workDir); err != nil {
			logging.ErrorWithContext(s.logger, "installer failed", "installer_failed",
				logging.String("installer", inst.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the definition file and rerun weft install"),
			)
			return report, fmt.Errorf("installer %s: %w", inst.Name(), err)
		}
		var results []Result
		if reporter, ok := inst.(Reporter); ok {
			results = reporter.Results()
			report.Results = append(report.Results, results...)
		}
		s.logger.Info("installer completed",
			logging.String("installer", inst.Name()),
			logging.Int("definitions", len(results)),
			logging.Duration("elapsed", time.Since(started)),
		)
	}
	return report, nil
}
