package telreg

import (
	"context"
	"fmt"
	"io"

	"github.com/hedeqiang/telreg/capability"
	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

// Registration is one subscriber as shown in a dump.
type Registration struct {
	ID    subscriber.ID `json:"id" yaml:"id"`
	Label string        `json:"label" yaml:"label"`
	Mask  status.Mask   `json:"mask" yaml:"mask"`
}

// DumpReport is a consistent view of the snapshot and the subscribers.
type DumpReport struct {
	State         status.Snapshot `json:"state" yaml:"state"`
	Registrations []Registration  `json:"registrations" yaml:"registrations"`
}

// DumpState captures the snapshot and the registrations in one critical
// section. It requires the dump capability.
func (r *Registry) DumpState(ctx context.Context) (DumpReport, error) {
	if err := r.checker.Check(ctx, capability.Dump); err != nil {
		log.Warnf("dump of %s denied: %v", r.config.Name, err)
		return DumpReport{}, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.table.DumpAll()
	report := DumpReport{
		State:         r.snap.Clone(),
		Registrations: make([]Registration, 0, len(records)),
	}
	for _, rec := range records {
		report.Registrations = append(report.Registrations, Registration{
			ID:    rec.ID,
			Label: rec.Label,
			Mask:  rec.Mask,
		})
	}
	return report, nil
}

// Dump writes the human readable dump to w. When the caller lacks the dump
// capability nothing is written and ErrPermissionDenied is returned.
func (r *Registry) Dump(ctx context.Context, w io.Writer) error {
	report, err := r.DumpState(ctx)
	if err != nil {
		return err
	}
	return report.WriteText(w)
}

// DenialMessage is the text shown to callers refused a dump.
func (r *Registry) DenialMessage() string {
	return "Permission Denial: can't dump " + r.config.Name
}

// WriteText renders the report in the line oriented dump format.
func (d DumpReport) WriteText(w io.Writer) error {
	s := d.State
	ew := &errWriter{w: w}
	ew.printf("last known state:\n")
	ew.printf("  callState=%s\n", s.CallState)
	ew.printf("  callIncomingNumber=%s\n", s.CallIncomingNumber)
	ew.printf("  serviceState=%s\n", s.ServiceState)
	ew.printf("  signalStrength=%d\n", s.SignalStrength)
	ew.printf("  messageWaiting=%t\n", s.MessageWaiting)
	ew.printf("  callForwarding=%t\n", s.CallForwarding)
	ew.printf("  dataActivity=%s\n", s.DataActivity)
	ew.printf("  dataConnectionState=%s\n", s.DataConnection.State)
	ew.printf("  dataConnectionPossible=%t\n", s.DataConnection.Possible)
	ew.printf("  dataConnectionReason=%s\n", s.DataConnection.Reason)
	ew.printf("  dataConnectionApn=%s\n", s.DataConnection.APN)
	ew.printf("  dataConnectionInterfaceName=%s\n", s.DataConnection.InterfaceName)
	ew.printf("  dataConnectionFailReason=%s\n", s.DataFailReason)
	ew.printf("  cellLocation=%s\n", s.CellLocation)
	ew.printf("registrations: count=%d\n", len(d.Registrations))
	for _, reg := range d.Registrations {
		ew.printf("  %s 0x%x\n", reg.Label, uint32(reg.Mask))
	}
	return ew.err
}

// errWriter keeps the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
