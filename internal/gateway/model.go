// Package gateway is the realtime signaling surface: one websocket per
// user carrying media negotiation ops inbound and room events outbound.
package gateway

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Client -> server ops.
const (
	OpSubscribe        = "room:subscribe"
	OpHeartbeat        = "heartbeat"
	OpTransportCreate  = "transport:create"
	OpTransportConnect = "transport:connect"
	OpTransportAnswer  = "transport:answer"
	OpProduce          = "produce"
	OpConsume          = "consume"
	OpConsumerResume   = "consumer:resume"
)

// Server -> client events.
const (
	EventSubscribed         = "room:subscribed"
	EventRoomUpdated        = "room-updated"
	EventRoomDestroyed      = "room-destroyed"
	EventUserSpeaking       = "user-speaking"
	EventForceCallStatus    = "force-call-status"
	EventForceMuteAll       = "force-mute-all"
	EventAudioRoutingUpdate = "audio-routing-update"
	EventTransportOffer     = "transport-offer"
	EventTransportCreated   = "transport:created"
	EventTransportConnected = "transport:connected"
	EventProduced           = "produced"
	EventConsumed           = "consumed"
	EventError              = "error"
)

// Message is the wire envelope in both directions. Ops carry a client
// ref that replies echo back.
type Message struct {
	Op    string          `json:"op,omitempty"`
	Event string          `json:"event,omitempty"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEvent(event string, payload any) *Message {
	msg := &Message{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			msg.Data = data
		}
	}
	return msg
}

func NewReply(ref, event string, payload any) *Message {
	msg := NewEvent(event, payload)
	msg.Ref = ref
	return msg
}

func NewError(ref, code, message string) *Message {
	return NewReply(ref, EventError, ErrorPayload{Code: code, Message: message})
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SubscribePayload struct {
	RoomID string `json:"room_id"`
}

type SubscribedPayload struct {
	RoomID string   `json:"room_id"`
	Codecs []string `json:"codecs"`
}

type TransportCreatePayload struct {
	Direction string `json:"direction"`
}

type TransportCreatedPayload struct {
	TransportID string `json:"transport_id"`
	Direction   string `json:"direction"`
}

type TransportConnectPayload struct {
	TransportID string                    `json:"transport_id"`
	Offer       webrtc.SessionDescription `json:"offer"`
}

type TransportConnectedPayload struct {
	TransportID string                    `json:"transport_id"`
	Answer      webrtc.SessionDescription `json:"answer"`
}

type TransportAnswerPayload struct {
	TransportID string                    `json:"transport_id"`
	Answer      webrtc.SessionDescription `json:"answer"`
}

type TransportOfferPayload struct {
	TransportID string                    `json:"transport_id"`
	Offer       webrtc.SessionDescription `json:"offer"`
}

type ProducePayload struct {
	TransportID string `json:"transport_id"`
}

type ProducedPayload struct {
	ProducerID string `json:"producer_id"`
}

type ConsumePayload struct {
	TransportID string   `json:"transport_id"`
	SpeakerID   string   `json:"speaker_id"`
	Codecs      []string `json:"codecs"`
}

type ConsumerResumePayload struct {
	ProducerID string `json:"producer_id"`
}

type SpeakingPayload struct {
	UserID   string `json:"user_id,omitempty"`
	Speaking bool   `json:"speaking"`
}

type ForceCallPayload struct {
	Active bool `json:"active"`
}

type RoutingUpdatePayload struct {
	AllowedSpeakerIDs []string `json:"allowed_speaker_ids"`
}

type RoomEventPayload struct {
	RoomID string `json:"room_id"`
}
