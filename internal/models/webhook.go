package models

import (
	"encoding/json"
	"errors"
)

// ErrInvalidJSON is returned by ParsePayload when the body is not JSON at all
var ErrInvalidJSON = errors.New("payload is not valid JSON")

// WebhookPayload is the subset of a repository webhook body the handler inspects.
// Unknown fields are ignored.
type WebhookPayload struct {
	Sender     Sender     `json:"sender"`
	Hook       Hook       `json:"hook"`
	Repository Repository `json:"repository"`
}

// Sender identifies the account that triggered the delivery
type Sender struct {
	Login string `json:"login"`
}

// Hook describes the webhook registration that produced the delivery
type Hook struct {
	Events []string `json:"events"`
}

// Repository identifies the repository the event belongs to
type Repository struct {
	Name string `json:"name"`
}

// HasEvent reports whether the hook is subscribed to the given event type
func (p *WebhookPayload) HasEvent(event string) bool {
	for _, e := range p.Hook.Events {
		if e == event {
			return true
		}
	}
	return false
}

// ParsePayload decodes the fields the handler inspects. Any syntactically valid
// JSON is accepted: a field that is missing or has the wrong type is left
// empty, so it only fails the gate that reads it.
func ParsePayload(body []byte) (*WebhookPayload, error) {
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	payload := &WebhookPayload{}
	payload.Sender.Login, _ = lookup(doc, "sender", "login").(string)
	payload.Repository.Name, _ = lookup(doc, "repository", "name").(string)

	if events, ok := lookup(doc, "hook", "events").([]any); ok {
		for _, e := range events {
			if s, ok := e.(string); ok {
				payload.Hook.Events = append(payload.Hook.Events, s)
			}
		}
	}

	return payload, nil
}

// lookup walks nested objects, returning nil as soon as a key is missing or
// a value on the path is not an object
func lookup(doc any, keys ...string) any {
	for _, key := range keys {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil
		}
		doc = obj[key]
	}
	return doc
}

// Response is the JSON body written for every handled delivery.
// Optional fields are only present once the deployment side effect ran.
type Response struct {
	Result     *bool   `json:"result,omitempty"`
	Message    string  `json:"message"`
	Revalidate *bool   `json:"revalidate,omitempty"`
	Repo       *string `json:"repo,omitempty"`
	Exec       *bool   `json:"exec,omitempty"`
}
