package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/squadlink/voice-backend/internal/sfu"
	"github.com/squadlink/voice-backend/internal/shared"
)

const (
	opTimeout      = 10 * time.Second
	produceTimeout = 30 * time.Second
)

func (s *Server) handleSubscribe(conn *Conn, msg *Message) {
	var req SubscribePayload
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.RoomID == "" {
		conn.Send(NewError(msg.Ref, "invalid_payload", "room_id is required"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	u, err := s.users.GetByID(ctx, conn.UserID())
	if err != nil {
		conn.Send(NewError(msg.Ref, "user_not_found", "user not found"))
		return
	}
	if u.RoomID != req.RoomID {
		conn.Send(NewError(msg.Ref, "not_in_room", "join the room before subscribing"))
		return
	}

	caps, err := s.registry.RouterCapabilities(req.RoomID)
	if err != nil {
		s.logger.Error("router create failed", "error", err, "room_id", req.RoomID)
		conn.Send(NewError(msg.Ref, "router_failed", "failed to prepare room media"))
		return
	}

	// A socket moving between rooms must not keep the old room's
	// channel or media state.
	if prev := conn.RoomID(); prev != "" && prev != req.RoomID {
		s.hub.Unsubscribe(prev, conn.UserID())
		s.registry.RemoveUser(prev, conn.UserID())
		if err := s.presence.Disconnect(ctx, conn.UserID()); err != nil {
			s.logger.Error("presence disconnect failed", "error", err, "user_id", conn.UserID())
		}
		s.reconciler.Trigger(prev)
	}

	s.hub.Subscribe(req.RoomID, conn)
	conn.setRoomID(req.RoomID)
	s.monitor.Watch(req.RoomID)

	if err := s.presence.Connect(ctx, req.RoomID, conn.UserID()); err != nil {
		s.logger.Error("presence connect failed", "error", err, "user_id", conn.UserID())
	}

	conn.Send(NewReply(msg.Ref, EventSubscribed, SubscribedPayload{
		RoomID: req.RoomID,
		Codecs: caps.Codecs,
	}))
	s.reconciler.Trigger(req.RoomID)
}

func (s *Server) handleHeartbeat(conn *Conn, _ *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	alive, err := s.presence.Heartbeat(ctx, conn.UserID())
	if err != nil {
		s.logger.Error("heartbeat failed", "error", err, "user_id", conn.UserID())
		return
	}
	if !alive {
		if roomID := conn.RoomID(); roomID != "" {
			_ = s.presence.Connect(ctx, roomID, conn.UserID())
		}
	}
}

func (s *Server) handleTransportCreate(conn *Conn, msg *Message) {
	roomID := conn.RoomID()
	if roomID == "" {
		conn.Send(NewError(msg.Ref, "not_subscribed", "subscribe to a room first"))
		return
	}

	var req TransportCreatePayload
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		conn.Send(NewError(msg.Ref, "invalid_payload", "invalid payload"))
		return
	}
	dir := sfu.Direction(req.Direction)
	if dir != sfu.DirectionSend && dir != sfu.DirectionRecv {
		conn.Send(NewError(msg.Ref, "invalid_direction", "direction must be send or recv"))
		return
	}

	transport, err := s.registry.CreateTransport(roomID, conn.UserID(), dir)
	if err != nil {
		s.logger.Error("transport create failed", "error", err, "room_id", roomID)
		conn.Send(NewError(msg.Ref, "transport_failed", "failed to create transport"))
		return
	}

	// Renegotiation offers ride the user's private channel.
	userID := conn.UserID()
	transportID := transport.ID()
	transport.OnNegotiationNeeded(func(offer webrtc.SessionDescription) {
		_ = s.hub.SendUser(userID, NewEvent(EventTransportOffer, TransportOfferPayload{
			TransportID: transportID,
			Offer:       offer,
		}))
	})

	conn.Send(NewReply(msg.Ref, EventTransportCreated, TransportCreatedPayload{
		TransportID: transportID,
		Direction:   string(dir),
	}))
}

func (s *Server) handleTransportConnect(conn *Conn, msg *Message) {
	roomID := conn.RoomID()
	if roomID == "" {
		conn.Send(NewError(msg.Ref, "not_subscribed", "subscribe to a room first"))
		return
	}

	var req TransportConnectPayload
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.TransportID == "" {
		conn.Send(NewError(msg.Ref, "invalid_payload", "transport_id and offer are required"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	answer, err := s.registry.ConnectTransport(ctx, roomID, req.TransportID, req.Offer)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			conn.Send(NewError(msg.Ref, "transport_not_found", "transport not found"))
			return
		}
		s.logger.Error("transport connect failed", "error", err, "transport_id", req.TransportID)
		conn.Send(NewError(msg.Ref, "connect_failed", "failed to connect transport"))
		return
	}

	conn.Send(NewReply(msg.Ref, EventTransportConnected, TransportConnectedPayload{
		TransportID: req.TransportID,
		Answer:      answer,
	}))
}

func (s *Server) handleTransportAnswer(conn *Conn, msg *Message) {
	roomID := conn.RoomID()
	if roomID == "" {
		conn.Send(NewError(msg.Ref, "not_subscribed", "subscribe to a room first"))
		return
	}

	var req TransportAnswerPayload
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.TransportID == "" {
		conn.Send(NewError(msg.Ref, "invalid_payload", "transport_id and answer are required"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.registry.AnswerTransport(ctx, roomID, req.TransportID, req.Answer); err != nil {
		s.logger.Error("transport answer failed", "error", err, "transport_id", req.TransportID)
		conn.Send(NewError(msg.Ref, "answer_failed", "failed to apply answer"))
	}
}

func (s *Server) handleProduce(conn *Conn, msg *Message) {
	roomID := conn.RoomID()
	if roomID == "" {
		conn.Send(NewError(msg.Ref, "not_subscribed", "subscribe to a room first"))
		return
	}

	var req ProducePayload
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.TransportID == "" {
		conn.Send(NewError(msg.Ref, "invalid_payload", "transport_id is required"))
		return
	}

	// The producer surfaces once the client's audio track arrives, which
	// may trail the signaling by a few RTT.
	ctx, cancel := context.WithTimeout(context.Background(), produceTimeout)
	defer cancel()

	producer, err := s.registry.Produce(ctx, roomID, req.TransportID, conn.UserID())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			conn.Send(NewError(msg.Ref, "transport_not_found", "transport not found"))
			return
		}
		s.logger.Error("produce failed", "error", err, "user_id", conn.UserID())
		conn.Send(NewError(msg.Ref, "produce_failed", "failed to attach audio stream"))
		return
	}

	conn.Send(NewReply(msg.Ref, EventProduced, ProducedPayload{ProducerID: producer.ID()}))
	s.reconciler.Trigger(roomID)
}

func (s *Server) handleConsume(conn *Conn, msg *Message) {
	roomID := conn.RoomID()
	if roomID == "" {
		conn.Send(NewError(msg.Ref, "not_subscribed", "subscribe to a room first"))
		return
	}

	var req ConsumePayload
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.TransportID == "" || req.SpeakerID == "" {
		conn.Send(NewError(msg.Ref, "invalid_payload", "transport_id and speaker_id are required"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := s.registry.Consume(ctx, roomID, req.TransportID, req.SpeakerID, conn.UserID(), sfu.Capabilities{Codecs: req.Codecs})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrIncompatibleCapability):
			conn.Send(NewError(msg.Ref, "incompatible_codecs", "client codecs do not match the router"))
		case errors.Is(err, shared.ErrNotFound):
			conn.Send(NewError(msg.Ref, "not_found", "speaker has no active stream"))
		default:
			s.logger.Error("consume failed", "error", err, "user_id", conn.UserID(), "speaker_id", req.SpeakerID)
			conn.Send(NewError(msg.Ref, "consume_failed", "failed to subscribe to stream"))
		}
		return
	}

	conn.Send(NewReply(msg.Ref, EventConsumed, result))
	s.reconciler.Trigger(roomID)
}

// handleConsumerResume does not resume directly: playback is always the
// policy engine's call. The op just forces a fresh pass.
func (s *Server) handleConsumerResume(conn *Conn, msg *Message) {
	roomID := conn.RoomID()
	if roomID == "" {
		conn.Send(NewError(msg.Ref, "not_subscribed", "subscribe to a room first"))
		return
	}
	s.reconciler.Trigger(roomID)
}
