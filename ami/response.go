package ami

import "strings"

// Response is the compound object assembled from one or more messages
// in reply to an Action. Messages[0] is always the head (the
// Response: line and its companions); Messages[1:] are follow-up
// events for multi-part responses, terminated by the sentinel event
// handled in routeToPending.
type Response struct {
	Success  bool
	ActionID int
	Messages []*Message
}

// Head returns the first (and, for single-shot responses, only)
// message of the response.
func (r *Response) Head() *Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return r.Messages[0]
}

// Get looks up a field on the head message.
func (r *Response) Get(key string) (string, bool) {
	h := r.Head()
	if h == nil {
		return "", false
	}
	return h.Get(key)
}

// newResponse derives Success from the head message's Response: field.
// "Success" and "Goodbye" are success; "Error" or anything else (or
// absence of the field) is failure.
func newResponse(actionID int, head *Message) *Response {
	status, _ := head.Get("Response")
	success := strings.EqualFold(status, "Success") || strings.EqualFold(status, "Goodbye")
	return &Response{
		Success:  success,
		ActionID: actionID,
		Messages: []*Message{head},
	}
}

// append adds a continuation message to an in-progress response.
func (r *Response) append(msg *Message) {
	r.Messages = append(r.Messages, msg)
}
