package server

import (
	"errors"
	"fmt"

	"github.com/hedeqiang/telreg"
	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/transport"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// applyNotify forwards a notify request for field to the registry.
func applyNotify(reg *telreg.Registry, field string, req transport.NotifyRequest) error {
	if field == transport.DataConnectionFailed {
		reg.NotifyDataConnectionFailed(req.Reason)
		return nil
	}

	f, err := status.ParseField(field)
	if err != nil {
		return fmt.Errorf("%w: %s", telreg.ErrUnknownField, field)
	}

	switch f {
	case status.CallStateField:
		state, err := status.ParseCallState(req.State)
		if err != nil {
			return badRequest("%v", err)
		}
		reg.NotifyCallState(state, req.IncomingNumber)
	case status.ServiceStateField:
		if req.ServiceState == nil {
			return badRequest("serviceState is required")
		}
		reg.NotifyServiceState(*req.ServiceState)
	case status.SignalStrengthField:
		if req.ASU == nil {
			return badRequest("asu is required")
		}
		reg.NotifySignalStrength(*req.ASU)
	case status.MessageWaitingField:
		if req.Value == nil {
			return badRequest("value is required")
		}
		reg.NotifyMessageWaiting(*req.Value)
	case status.CallForwardingField:
		if req.Value == nil {
			return badRequest("value is required")
		}
		reg.NotifyCallForwarding(*req.Value)
	case status.DataActivityField:
		activity, err := status.ParseDataActivity(req.Activity)
		if err != nil {
			return badRequest("%v", err)
		}
		reg.NotifyDataActivity(activity)
	case status.DataConnectionStateField:
		state, err := status.ParseDataState(req.State)
		if err != nil {
			return badRequest("%v", err)
		}
		reg.NotifyDataConnection(state, req.Possible, req.Reason, req.APN, req.Iface)
	case status.CellLocationField:
		reg.NotifyCellLocation(req.CellLocation)
	}
	return nil
}
