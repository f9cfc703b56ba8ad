package sinks

import (
	"context"

	"github.com/JakeFAU/newsroom-builder/internal/metrics"
	"github.com/JakeFAU/newsroom-builder/internal/progress"
)

// PrometheusSink mirrors snapshots into the stage progress gauges.
type PrometheusSink struct{}

// NewPrometheusSink ensures the collectors exist.
func NewPrometheusSink() *PrometheusSink {
	metrics.Init()
	return &PrometheusSink{}
}

// Report sets the gauges.
func (*PrometheusSink) Report(_ context.Context, snap progress.Snapshot) error {
	metrics.SetProgress(snap.Stage, snap.Total, snap.Done, snap.Failed)
	return nil
}
