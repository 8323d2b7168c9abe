package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chrysalis/internal/domain"
)

type registerRequest struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// registerHandler binds the calling connection to an agent id and announces
// the agent to every other connection.
func registerHandler(s *Server) RPCHandler {
	return func(ctx context.Context, conn Conn, payload json.RawMessage) (json.RawMessage, error) {
		var req registerRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.NewDomainError("gateway.register", domain.ErrRPCInvalidPayload, err.Error())
		}
		if req.AgentID == "" {
			return nil, domain.NewDomainError("gateway.register", domain.ErrRPCInvalidPayload, "agentId is required")
		}

		// The connection may have dropped while this request was in flight.
		if !s.registry.Register(req.AgentID, conn) {
			return nil, domain.NewDomainError("gateway.register", domain.ErrConnectionClosed, "connection is no longer live")
		}
		s.logger.Info("agent registered", "agent_id", req.AgentID, "agent_name", req.AgentName, "conn_id", conn.ID())

		frame, err := eventFrame(EventAgentConnected, req)
		if err != nil {
			return nil, domain.WrapOp("gateway.register", err)
		}
		fanOut(s.logger, s.registry.Connections(), frame, conn)
		s.publish(ctx, domain.EventAgentConnected, req.AgentID, frame.Payload)

		return json.Marshal(registerResponse{
			Success: true,
			Message: fmt.Sprintf("Agent %s registered", req.AgentID),
		})
	}
}

// chatMessageHandler stamps the message and relays it to every connection,
// the sender included. Messages are not stored.
func chatMessageHandler(s *Server) RPCHandler {
	return func(ctx context.Context, conn Conn, payload json.RawMessage) (json.RawMessage, error) {
		var msg map[string]any
		if err := json.Unmarshal(payload, &msg); err != nil || msg == nil {
			return nil, domain.NewDomainError("gateway.chat-message", domain.ErrRPCInvalidPayload, "payload must be a JSON object")
		}
		msg["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

		frame, err := eventFrame(EventChatMessage, msg)
		if err != nil {
			return nil, domain.NewDomainError("gateway.chat-message", domain.ErrRPCInvalidPayload, err.Error())
		}
		delivered := fanOut(s.logger, s.registry.Connections(), frame, nil)
		s.logger.Debug("chat relayed", "conn_id", conn.ID(), "delivered", delivered)
		s.publish(ctx, domain.EventChatRelayed, "", frame.Payload)

		return frame.Payload, nil
	}
}
