// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// NewWaitSpinner returns an indeterminate spinner describing what the
// supervisor is waiting on (first process, drain, finalization). Returns
// nil when stderr is not a TTY or noColor was requested, so callers can
// safely no-op on a nil spinner.
func NewWaitSpinner(noColor bool, description string) *progressbar.ProgressBar {
	if noColor || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}

	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

// TickSpinner advances bar by one step if non-nil.
func TickSpinner(bar *progressbar.ProgressBar) {
	if bar == nil {
		return
	}
	_ = bar.Add(1)
}

// FinishSpinner clears a non-nil spinner.
func FinishSpinner(bar *progressbar.ProgressBar) {
	if bar == nil {
		return
	}
	_ = bar.Finish()
}
