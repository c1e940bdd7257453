package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscanner/pkg/events"
)

// DefaultGroup is the consumer group the listener joins.
const DefaultGroup = "vuln-service"

// Listener runs a scan for every [events.ScanRequested] and publishes an
// [events.AdvisoryFound] when the scan finds anything. A scan that runs into
// its own timeout still publishes the partial findings, marked truncated.
type Listener struct {
	bus    events.Bus
	engine *Engine
	group  string
	logger *log.Logger
}

// NewListener creates a listener. An empty group uses DefaultGroup.
func NewListener(bus events.Bus, engine *Engine, group string, logger *log.Logger) *Listener {
	if group == "" {
		group = DefaultGroup
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Listener{bus: bus, engine: engine, group: group, logger: logger}
}

// Run consumes scan requests until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("listening for scan requests", "topic", events.TopicScanRequested, "group", l.group)
	return l.bus.Subscribe(ctx, events.TopicScanRequested, l.group, l.Handle)
}

// Handle processes one scan request message.
func (l *Listener) Handle(ctx context.Context, msg events.Message) error {
	req, err := events.Decode[events.ScanRequested](msg)
	if err != nil {
		// A malformed request will never succeed; drop it.
		l.logger.Error("dropping malformed scan request", "id", msg.ID, "err", err)
		return nil
	}
	l.logger.Info("scan requested", "project", req.Project.Name, "dependencies", len(req.Dependencies))

	report, err := l.engine.ScanWithID(ctx, req.ScanID, req.Dependencies)
	switch {
	case err == nil:
	case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		// The scan's own deadline. Replaying the request would time out
		// again, so report what was found and acknowledge it.
		l.logger.Warn("scan timed out, reporting partial results", "scan", report.ScanID,
			"visited", report.Visited, "vulnerable", len(report.Vulnerable))
	default:
		return fmt.Errorf("scan %s: %w", report.ScanID, err)
	}
	if report.Clean() {
		l.logger.Info("no vulnerable dependencies", "scan", report.ScanID, "project", req.Project.Name)
		return nil
	}

	found := events.AdvisoryFound{
		ScanID:           report.ScanID,
		UserEmail:        req.UserEmail,
		Project:          req.Project,
		VulnDependencies: make([]events.VulnerableDependency, len(report.Vulnerable)),
		Truncated:        report.Truncated,
	}
	for i, v := range report.Vulnerable {
		found.VulnDependencies[i] = events.VulnerableDependency{
			Dependency:   v.Dependency,
			AdvisoryKeys: v.AdvisoryKeys,
			PURL:         events.PURL(v.Dependency),
		}
	}
	if err := events.PublishJSON(ctx, l.bus, events.TopicAdvisoryFound, found); err != nil {
		return err
	}
	l.logger.Info("vulnerable dependencies reported", "scan", report.ScanID, "count", len(found.VulnDependencies))
	return nil
}
