package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/core/response"
)

// ConnectClient speaks the Connect unary protocol with the JSON codec.
// Request and response bodies are the same JSON documents HTTPClient sends,
// carried as structpb.Struct messages, so a plain JSON chat API serves both.
//
// Unlike HTTPClient, a body that is not a JSON object fails the call.
type ConnectClient struct {
	chat  *connect.Client[structpb.Struct, structpb.Struct]
	reset *connect.Client[structpb.Struct, structpb.Struct]
}

// NewConnectClient creates a ConnectClient. A nil httpClient uses
// http.DefaultClient.
func NewConnectClient(endpoint string, httpClient *http.Client) *ConnectClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ConnectClient{
		chat:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, endpoint, connect.WithProtoJSON()),
		reset: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, ResetURL(endpoint), connect.WithProtoJSON()),
	}
}

func (c *ConnectClient) Complete(ctx context.Context, req protocol.ChatRequest) (*response.Chat, error) {
	msg, err := toStruct(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.chat.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}

	body, err := protojson.Marshal(resp.Msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return response.DecodeChat(body), nil
}

func (c *ConnectClient) Reset(ctx context.Context, req protocol.ResetRequest) error {
	msg, err := toStruct(req)
	if err != nil {
		return err
	}
	_, err = c.reset.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

func toStruct(payload any) (*structpb.Struct, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var msg structpb.Struct
	if err := protojson.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to convert request: %w", err)
	}
	return &msg, nil
}
