package notifier

import (
	"fmt"
	"time"

	"github.com/containrrr/shoutrrr"
	"github.com/dustin/go-humanize"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/logger"
)

// sendFunc delivers one message to a shoutrrr URL.
type sendFunc func(url, message string) error

// Notifier sends the end-of-run summary to a single shoutrrr target.
// A nil or disabled Notifier does nothing.
type Notifier struct {
	url  string
	send sendFunc
}

// New validates rawURL and returns a notifier for it. An empty rawURL gives a
// disabled notifier, not an error.
func New(rawURL string) (*Notifier, error) {
	if rawURL == "" {
		return &Notifier{}, nil
	}
	target, err := BuildURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Notifier{url: target, send: shoutrrr.Send}, nil
}

// Enabled reports whether a target is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// NotifyRun sends the one-line summary of r. A delivery failure is logged and
// returned but never fatal to the run.
func (n *Notifier) NotifyRun(r *domain.RunReport) error {
	if !n.Enabled() || r == nil {
		return nil
	}

	message := FormatMessage(r)
	if err := n.send(n.url, message); err != nil {
		logger.Errorf("Failed to send run notification: %v", err)
		return fmt.Errorf("failed to send notification: %w", err)
	}
	logger.Debugf("Sent run notification for %s", r.Summary.RunID)
	return nil
}

type messageFormatter func(r *domain.RunReport) string

var messageFormatters = map[string]messageFormatter{
	domain.CommandReconcile: fmtReconcile,
	domain.CommandMigrate:   fmtMigrate,
}

// FormatMessage renders the one-line summary for a finished run.
func FormatMessage(r *domain.RunReport) string {
	if formatter, ok := messageFormatters[r.Command]; ok {
		return formatter(r)
	}
	return fmt.Sprintf("Archivarr %s finished (%s)", r.Command, r.Summary.Mode)
}

func fmtReconcile(r *domain.RunReport) string {
	s := r.Summary
	return fmt.Sprintf("Archivarr reconcile (%s): %d found, %d fix_metadata, %d reset_failed, %d stale_cache, %d fixed, %d reset, %d errors, %d scan errors in %s",
		s.Mode, s.Found,
		s.ByAction[domain.ActionFixMetadata], s.ByAction[domain.ActionResetFailed], s.ByAction[domain.ActionStaleCache],
		s.Fixed, s.Reset, s.Errors, s.ScanErrors, r.Duration().Round(time.Second))
}

func fmtMigrate(r *domain.RunReport) string {
	s := r.Summary
	return fmt.Sprintf("Archivarr migrate (%s): %d found, %d migrated, %d errors, %s copied in %s",
		s.Mode, s.Found, s.Migrated, s.Errors+s.ScanErrors,
		humanize.Bytes(uint64(r.BytesCopied())), r.Duration().Round(time.Second))
}
