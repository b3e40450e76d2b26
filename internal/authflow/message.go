package authflow

import "net/url"

// CallbackMessageType is the type carried by authorization callback messages
const CallbackMessageType = "oauth2_callback"

// Message is a completion signal delivered to Client.Deliver
type Message struct {
	// Origin is scheme://host[:port] of the page that sent the message
	Origin string

	Type             string
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// MessageFromQuery builds a callback message from the query parameters of
// the provider's redirect
func MessageFromQuery(origin string, q url.Values) Message {
	return Message{
		Origin:           origin,
		Type:             CallbackMessageType,
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}
