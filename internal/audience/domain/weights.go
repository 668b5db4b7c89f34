// Package domain holds the pure audience model: the weight table, tier rules,
// entity keys and the records persisted by the repository.
package domain

import "sort"

// EventType is the closed set of behavioral signals the ingestor accepts.
type EventType string

const (
	EventLandingView       EventType = "landing.view"
	EventLandingCTAClick   EventType = "landing.cta_click"
	EventLandingFormSubmit EventType = "landing.form_submit"
	EventBrochureDownload  EventType = "brochure.download"
	EventAgentChatStarted  EventType = "agent.chat_started"
	EventAgentLeadCreated  EventType = "agent.lead_created"
	EventAdsClick          EventType = "ads.click"
	EventAdsConversion     EventType = "ads.conversion"
	EventSenderSent        EventType = "sender.sent"
	EventSenderReplied     EventType = "sender.replied"
	EventHandoffCreated    EventType = "handoff.created"
)

// WeightVersion identifies the weight table below. It is stamped on every
// persisted segment and must change whenever a weight changes.
const WeightVersion = "w1"

var weights = map[EventType]int{
	EventLandingView:       1,
	EventLandingCTAClick:   3,
	EventLandingFormSubmit: 13,
	EventBrochureDownload:  5,
	EventAgentChatStarted:  3,
	EventAgentLeadCreated:  21,
	EventAdsClick:          2,
	EventAdsConversion:     13,
	EventSenderSent:        1,
	EventSenderReplied:     13,
	EventHandoffCreated:    8,
}

// Weight returns the score of an event type. Unknown types score 0.
func Weight(t EventType) int {
	return weights[t]
}

// Valid reports whether t belongs to the weight table.
func (t EventType) Valid() bool {
	_, ok := weights[t]
	return ok
}

// EventTypes lists every known type in lexical order.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(weights))
	for t := range weights {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
