package core

import (
	"context"
	"encoding/json"
)

// Reporter mirrors device status to an external observer.
type Reporter interface {
	ReportState(ctx context.Context, state DeviceState, sessionOpen bool) error
	ReportThings(ctx context.Context, states json.RawMessage) error
	ReportBoard(ctx context.Context, board Board) error
}

// CommandHandler receives capability commands that arrive outside the session.
type CommandHandler func(commands []json.RawMessage)

// NopReporter drops every report.
type NopReporter struct{}

var _ Reporter = NopReporter{}

func (NopReporter) ReportState(context.Context, DeviceState, bool) error { return nil }
func (NopReporter) ReportThings(context.Context, json.RawMessage) error  { return nil }
func (NopReporter) ReportBoard(context.Context, Board) error             { return nil }
