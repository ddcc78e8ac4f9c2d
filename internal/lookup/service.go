// ABOUTME: gRPC key lookup service used by the game server to resolve keys and bans
// ABOUTME: Messages are protobuf well-known types so no generated code is needed

package lookup

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/users"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cnut.lookup.v1.KeyLookup"

const (
	methodLookupUID = "/" + ServiceName + "/LookupUID"
	methodLookupKey = "/" + ServiceName + "/LookupKey"
	methodGetBan    = "/" + ServiceName + "/GetBan"
)

// Store is the read side of the user store the lookup service needs.
type Store interface {
	LookupUIDByKey(ctx context.Context, key string) (string, error)
	LookupKeyByUID(ctx context.Context, uid string) (string, error)
	GetTypedRecord(ctx context.Context, uid, logicalName string, out any) (bool, error)
}

// KeyLookupServer is the server API for the KeyLookup service.
type KeyLookupServer interface {
	// LookupUID resolves a key to its uid. Unknown keys give an empty string.
	LookupUID(ctx context.Context, key *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	// LookupKey resolves a uid to its key. Unknown uids give an empty string.
	LookupKey(ctx context.Context, uid *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	// GetBan returns the ban record of a uid, or an empty struct when not banned.
	GetBan(ctx context.Context, uid *wrapperspb.StringValue) (*structpb.Struct, error)
}

// Service implements KeyLookupServer on top of a Store.
type Service struct {
	store Store
}

// NewService creates the lookup service.
func NewService(s Store) *Service {
	return &Service{store: s}
}

// Register adds the service to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv KeyLookupServer) {
	s.RegisterService(&serviceDesc, srv)
}

func (s *Service) LookupUID(ctx context.Context, key *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if key.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}
	uid, err := s.store.LookupUIDByKey(ctx, key.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "looking up key: %v", err)
	}
	return wrapperspb.String(uid), nil
}

func (s *Service) LookupKey(ctx context.Context, uid *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if uid.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "uid is required")
	}
	key, err := s.store.LookupKeyByUID(ctx, uid.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "looking up uid: %v", err)
	}
	return wrapperspb.String(key), nil
}

func (s *Service) GetBan(ctx context.Context, uid *wrapperspb.StringValue) (*structpb.Struct, error) {
	if uid.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "uid is required")
	}
	var ban users.BanInfo
	found, err := s.store.GetTypedRecord(ctx, uid.GetValue(), users.RecordBanInfo, &ban)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "reading ban: %v", err)
	}
	if !found {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	return banStruct(&ban)
}

// banStruct renders times as RFC 3339 in UTC. A permanent ban has no "To" field.
func banStruct(ban *users.BanInfo) (*structpb.Struct, error) {
	fields := map[string]any{
		"UID":    ban.UID,
		"Name":   ban.Name,
		"Reason": ban.Reason,
	}
	if ban.From != nil {
		fields["From"] = ban.From.UTC().Format(time.RFC3339)
	}
	if ban.To != nil {
		fields["To"] = ban.To.UTC().Format(time.RFC3339)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding ban: %v", err)
	}
	return out, nil
}

func lookupUIDHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeyLookupServer).LookupUID(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodLookupUID}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(KeyLookupServer).LookupUID(ctx, req.(*wrapperspb.StringValue))
	})
}

func lookupKeyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeyLookupServer).LookupKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodLookupKey}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(KeyLookupServer).LookupKey(ctx, req.(*wrapperspb.StringValue))
	})
}

func getBanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeyLookupServer).GetBan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetBan}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(KeyLookupServer).GetBan(ctx, req.(*wrapperspb.StringValue))
	})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KeyLookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LookupUID", Handler: lookupUIDHandler},
		{MethodName: "LookupKey", Handler: lookupKeyHandler},
		{MethodName: "GetBan", Handler: getBanHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cnut/lookup/v1/lookup.proto",
}

var _ KeyLookupServer = (*Service)(nil)
