package ami

import "github.com/stumpf-works/asterisk-ami/pkg/amierr"

// Getvar retrieves the value of an Asterisk variable. If channel is
// empty, a global variable is requested.
func (s *Session) Getvar(variable, channel string) (string, error) {
	params := []Param{{Key: "Variable", Value: variable}}
	if channel != "" {
		params = append(params, Param{Key: "Channel", Value: channel})
	}
	resp, err := s.Action("Getvar", params...)
	if err != nil {
		return "", err
	}
	if resp == nil || !resp.Success {
		return "", amierr.Action("getvar failed", nil)
	}
	value, _ := resp.Get("Value")
	return value, nil
}

// Setvar sets an Asterisk variable. If channel is empty, a global
// variable is set.
func (s *Session) Setvar(variable, value, channel string) error {
	params := []Param{
		{Key: "Variable", Value: variable},
		{Key: "Value", Value: value},
	}
	if channel != "" {
		params = append(params, Param{Key: "Channel", Value: channel})
	}
	resp, err := s.Action("Setvar", params...)
	if err != nil {
		return err
	}
	if resp == nil || !resp.Success {
		return amierr.Action("setvar failed", nil)
	}
	return nil
}

// OriginateExten originates a call on dest into context/exten/priority,
// optionally stamping a caller ID. callerID may be empty.
func (s *Session) OriginateExten(dest, context, exten, priority, callerID string) error {
	params := []Param{
		{Key: "Channel", Value: dest},
		{Key: "Context", Value: context},
		{Key: "Exten", Value: exten},
		{Key: "Priority", Value: priority},
	}
	if callerID != "" {
		params = append(params, Param{Key: "CallerID", Value: callerID})
	}
	resp, err := s.Action("Originate", params...)
	if err != nil {
		return err
	}
	if resp == nil || !resp.Success {
		return amierr.Action("originate failed", nil)
	}
	return nil
}

// Redirect moves an active channel to a new context/exten/priority.
func (s *Session) Redirect(channel, context, exten, priority string) error {
	resp, err := s.Action("Redirect",
		Param{Key: "Channel", Value: channel},
		Param{Key: "Context", Value: context},
		Param{Key: "Exten", Value: exten},
		Param{Key: "Priority", Value: priority},
	)
	if err != nil {
		return err
	}
	if resp == nil || !resp.Success {
		return amierr.Action("redirect failed", nil)
	}
	return nil
}

// Reload reloads an Asterisk module, or the entire configuration if
// module is empty.
func (s *Session) Reload(module string) error {
	var params []Param
	if module != "" {
		params = append(params, Param{Key: "Module", Value: module})
	}
	resp, err := s.Action("Reload", params...)
	if err != nil {
		return err
	}
	if resp == nil || !resp.Success {
		return amierr.Action("reload failed", nil)
	}
	return nil
}
