// ABOUTME: Client for the key lookup service, used by the CLI and tests
// ABOUTME: Attaches the shared service token to every call

package lookup

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote KeyLookup service.
type Client struct {
	cc    grpc.ClientConnInterface
	token string
}

// NewClient wraps a connection. An empty token sends no authorization metadata.
func NewClient(cc grpc.ClientConnInterface, token string) *Client {
	return &Client{cc: cc, token: token}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// LookupUID returns the uid owning key, or "" when the key is unknown.
func (c *Client) LookupUID(ctx context.Context, key string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(c.outgoing(ctx), methodLookupUID, wrapperspb.String(key), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// LookupKey returns the key of uid, or "" when the uid is unknown.
func (c *Client) LookupKey(ctx context.Context, uid string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(c.outgoing(ctx), methodLookupKey, wrapperspb.String(uid), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// GetBan returns the ban fields of uid. The map is empty when uid is not banned.
func (c *Client) GetBan(ctx context.Context, uid string) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(c.outgoing(ctx), methodGetBan, wrapperspb.String(uid), out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
