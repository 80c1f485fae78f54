package integrity

import (
	"context"

	"github.com/pkozlov/sentryvault/internal/logging"
)

// FrequencyControl lets a response escalate monitoring frequency.
// *Monitor satisfies this interface.
type FrequencyControl interface {
	TightenInterval()
}

// Locker disables access to protected storage. The storage engine's
// lockdown switch satisfies this interface.
type Locker interface {
	Lockdown()
}

// LogResponder dispatches severity-specific responses:
//
//	low      — log only
//	medium   — enhanced monitoring: tighten the check interval
//	high     — defensive measures: tighten and isolate affected resources
//	critical — lockdown: disable storage access, alert
//
// It is total over threat levels (none is a no-op) and never lets an
// internal failure escape to the calling tick.
type LogResponder struct {
	log    logging.Logger
	freq   FrequencyControl
	locker Locker
}

func NewLogResponder(log logging.Logger, freq FrequencyControl, locker Locker) *LogResponder {
	return &LogResponder{log: log.With("component", "responder"), freq: freq, locker: locker}
}

func (r *LogResponder) Respond(ctx context.Context, level ThreatLevel, records []Record) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error(ctx, "response failed", "panic", p)
		}
	}()

	switch level {
	case ThreatNone:
		return

	case ThreatLow:
		r.log.Info(ctx, "integrity deviation noted", "records", len(records))

	case ThreatMedium:
		r.log.Warn(ctx, "enhanced monitoring engaged", "records", len(records))
		r.tighten()

	case ThreatHigh:
		r.log.Error(ctx, "defensive measures engaged", "records", len(records))
		r.tighten()
		for _, rec := range records {
			r.log.Error(ctx, "resource isolated", "resource", rec.Resource, "severity", rec.Severity.String())
		}

	case ThreatCritical:
		r.log.Error(ctx, "lockdown engaged", "records", len(records))
		if r.locker != nil {
			r.locker.Lockdown()
		}
		r.tighten()
		for _, rec := range records {
			r.log.Error(ctx, "critical resource compromised",
				"resource", rec.Resource,
				"expected", rec.ExpectedHash,
				"actual", rec.ActualHash)
		}
	}
}

func (r *LogResponder) tighten() {
	if r.freq != nil {
		r.freq.TightenInterval()
	}
}
