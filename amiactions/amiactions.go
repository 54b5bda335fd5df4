// Package amiactions collects convenience wrappers over specific AMI
// actions. These are out-of-core callers of ami.Session.Action:
// nothing here touches the socket, the frame parser, or the pending
// table directly.
package amiactions

import (
	"strings"

	"github.com/stumpf-works/asterisk-ami/ami"
	"github.com/stumpf-works/asterisk-ami/pkg/amierr"
)

// Hangup hangs up an active channel.
func Hangup(s *ami.Session, channel string) error {
	resp, err := s.Action("Hangup", ami.Param{Key: "Channel", Value: channel})
	if err != nil {
		return err
	}
	if resp == nil || !resp.Success {
		return amierr.Action("hangup failed", nil)
	}
	return nil
}

// Park parks channel in parkingLot (or Asterisk's default lot if
// empty).
func Park(s *ami.Session, channel, parkingLot string) error {
	params := []ami.Param{{Key: "Channel", Value: channel}}
	if parkingLot != "" {
		params = append(params, ami.Param{Key: "Parkinglot", Value: parkingLot})
	}
	resp, err := s.Action("Park", params...)
	if err != nil {
		return err
	}
	if resp == nil || !resp.Success {
		return amierr.Action("park failed", nil)
	}
	return nil
}

// QueueEntry is one row reported by QueueStatus: a QueueParams,
// QueueMember or QueueEntry event, with its fields keyed by name.
type QueueEntry struct {
	Fields map[string]string
}

// QueueStatus requests the status of one queue (or every queue, if
// queue is empty). This is a multi-part response: a head
// (EventList: start), one QueueParams/QueueMember/QueueEntry event per
// row, and a QueueStatusComplete terminator.
func QueueStatus(s *ami.Session, queue string) ([]QueueEntry, error) {
	var params []ami.Param
	if queue != "" {
		params = append(params, ami.Param{Key: "Queue", Value: queue})
	}
	resp, err := s.Action("QueueStatus", params...)
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Success {
		return nil, amierr.Action("queuestatus failed", nil)
	}

	var entries []QueueEntry
	for _, msg := range resp.Messages[1:] {
		if v, _ := msg.Get("EventList"); strings.EqualFold(v, "complete") {
			continue
		}
		fields := make(map[string]string, len(msg.Fields))
		for _, f := range msg.Fields {
			fields[f.Key] = f.Value
		}
		entries = append(entries, QueueEntry{Fields: fields})
	}
	return entries, nil
}

// CoreShowChannels returns the Channel field of every active channel
// reported by the CoreShowChannels action.
func CoreShowChannels(s *ami.Session) ([]string, error) {
	resp, err := s.Action("CoreShowChannels")
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Success {
		return nil, amierr.Action("coreshowchannels failed", nil)
	}

	var channels []string
	for _, msg := range resp.Messages[1:] {
		if ch, ok := msg.Get("Channel"); ok {
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

// PJSIPEndpoint is one endpoint reported by PJSIPShowEndpoints.
type PJSIPEndpoint struct {
	ObjectName  string
	DeviceState string
}

// PJSIPShowEndpoints lists configured PJSIP endpoints.
func PJSIPShowEndpoints(s *ami.Session) ([]PJSIPEndpoint, error) {
	resp, err := s.Action("PJSIPShowEndpoints")
	if err != nil {
		return nil, err
	}
	if resp == nil || !resp.Success {
		return nil, amierr.Action("pjsipshowendpoints failed", nil)
	}

	var endpoints []PJSIPEndpoint
	for _, msg := range resp.Messages[1:] {
		name, _ := msg.Get("ObjectName")
		state, _ := msg.Get("DeviceState")
		if name == "" {
			continue
		}
		endpoints = append(endpoints, PJSIPEndpoint{ObjectName: name, DeviceState: state})
	}
	return endpoints, nil
}

// CoreShowVersion returns Asterisk's version string via the legacy
// Command action (Response: Follows / --END COMMAND--), whose output
// the ami package's frame parser folds into a single Output field.
func CoreShowVersion(s *ami.Session) (string, error) {
	resp, err := s.Action("Command", ami.Param{Key: "Command", Value: "core show version"})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", amierr.Action("core show version failed", nil)
	}
	if status, _ := resp.Get("Response"); !resp.Success && !strings.EqualFold(status, "Follows") {
		return "", amierr.Action("core show version failed", nil)
	}
	output, _ := resp.Get("Output")
	return strings.TrimSpace(output), nil
}
