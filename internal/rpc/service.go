package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "charasync.v1.CharaSync"

// FullMethod returns the gRPC method path for name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Method names.
const (
	MethodRegister          = "Register"
	MethodGetSalt           = "GetSalt"
	MethodLogin             = "Login"
	MethodRefreshToken      = "RefreshToken"
	MethodGetLimits         = "GetLimits"
	MethodCreateRecord      = "CreateRecord"
	MethodUpdateRecord      = "UpdateRecord"
	MethodDeleteRecord      = "DeleteRecord"
	MethodGetOwnedRecords   = "GetOwnedRecords"
	MethodGetSharedRecords  = "GetSharedRecords"
	MethodFetchMetaInfo     = "FetchMetaInfo"
	MethodDownloadRecord    = "DownloadRecord"
	MethodUploadAppearance  = "UploadAppearance"
	MethodCheckFilesExist   = "CheckFilesExist"
	MethodUploadFiles       = "UploadFiles"
	MethodMarkUploaded      = "MarkUploaded"
	MethodDownloadURLs      = "DownloadURLs"
	MethodGetRelationships  = "GetRelationships"
	MethodPairWith          = "PairWith"
	MethodSetPairPaused     = "SetPairPaused"
	MethodJoinGroup         = "JoinGroup"
	MethodCreateLobby       = "CreateLobby"
	MethodJoinLobby         = "JoinLobby"
	MethodLeaveLobby        = "LeaveLobby"
	MethodBroadcastSnapshot = "BroadcastSnapshot"
	MethodLobbyEvents       = "LobbyEvents"
)

// PublicMethods lists calls that do not require an access token.
var PublicMethods = map[string]struct{}{
	FullMethod(MethodRegister):     {},
	FullMethod(MethodGetSalt):      {},
	FullMethod(MethodLogin):        {},
	FullMethod(MethodRefreshToken): {},
}

// CharaSyncServer is implemented by the server-side handler.
type CharaSyncServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*LoginResponse, error)

	GetLimits(context.Context, *Empty) (*LimitsResponse, error)
	CreateRecord(context.Context, *Empty) (*RecordResponse, error)
	UpdateRecord(context.Context, *UpdateRecordRequest) (*RecordResponse, error)
	DeleteRecord(context.Context, *RecordIDRequest) (*Empty, error)
	GetOwnedRecords(context.Context, *Empty) (*RecordsResponse, error)
	GetSharedRecords(context.Context, *Empty) (*RecordsResponse, error)
	FetchMetaInfo(context.Context, *CodeRequest) (*MetaResponse, error)
	DownloadRecord(context.Context, *CodeRequest) (*RecordResponse, error)
	UploadAppearance(context.Context, *UploadAppearanceRequest) (*RecordResponse, error)

	CheckFilesExist(context.Context, *HashesRequest) (*HashesResponse, error)
	UploadFiles(context.Context, *HashesRequest) (*TransferTasksResponse, error)
	MarkUploaded(context.Context, *HashRequest) (*Empty, error)
	DownloadURLs(context.Context, *HashesRequest) (*TransferTasksResponse, error)

	GetRelationships(context.Context, *Empty) (*RelationshipsResponse, error)
	PairWith(context.Context, *UserRequest) (*Empty, error)
	SetPairPaused(context.Context, *PauseRequest) (*Empty, error)
	JoinGroup(context.Context, *GroupRequest) (*Empty, error)

	CreateLobby(context.Context, *Empty) (*LobbyResponse, error)
	JoinLobby(context.Context, *LobbyRequest) (*LobbyResponse, error)
	LeaveLobby(context.Context, *LobbyRequest) (*Empty, error)
	BroadcastSnapshot(context.Context, *BroadcastRequest) (*Empty, error)
	LobbyEvents(*LobbyRequest, LobbyEventsServer) error
}

// LobbyEventsServer is the server side of the LobbyEvents stream.
type LobbyEventsServer interface {
	Send(*LobbyEventMessage) error
	Context() context.Context
}

func unary[Req, Resp any](name string, call func(CharaSyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CharaSyncServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CharaSyncServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type lobbyEventsServer struct {
	grpc.ServerStream
}

func (s *lobbyEventsServer) Send(m *LobbyEventMessage) error {
	return s.ServerStream.SendMsg(m)
}

func lobbyEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(LobbyRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CharaSyncServer).LobbyEvents(in, &lobbyEventsServer{stream})
}

// ServiceDesc describes the CharaSync service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CharaSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRegister, CharaSyncServer.Register),
		unary(MethodGetSalt, CharaSyncServer.GetSalt),
		unary(MethodLogin, CharaSyncServer.Login),
		unary(MethodRefreshToken, CharaSyncServer.RefreshToken),
		unary(MethodGetLimits, CharaSyncServer.GetLimits),
		unary(MethodCreateRecord, CharaSyncServer.CreateRecord),
		unary(MethodUpdateRecord, CharaSyncServer.UpdateRecord),
		unary(MethodDeleteRecord, CharaSyncServer.DeleteRecord),
		unary(MethodGetOwnedRecords, CharaSyncServer.GetOwnedRecords),
		unary(MethodGetSharedRecords, CharaSyncServer.GetSharedRecords),
		unary(MethodFetchMetaInfo, CharaSyncServer.FetchMetaInfo),
		unary(MethodDownloadRecord, CharaSyncServer.DownloadRecord),
		unary(MethodUploadAppearance, CharaSyncServer.UploadAppearance),
		unary(MethodCheckFilesExist, CharaSyncServer.CheckFilesExist),
		unary(MethodUploadFiles, CharaSyncServer.UploadFiles),
		unary(MethodMarkUploaded, CharaSyncServer.MarkUploaded),
		unary(MethodDownloadURLs, CharaSyncServer.DownloadURLs),
		unary(MethodGetRelationships, CharaSyncServer.GetRelationships),
		unary(MethodPairWith, CharaSyncServer.PairWith),
		unary(MethodSetPairPaused, CharaSyncServer.SetPairPaused),
		unary(MethodJoinGroup, CharaSyncServer.JoinGroup),
		unary(MethodCreateLobby, CharaSyncServer.CreateLobby),
		unary(MethodJoinLobby, CharaSyncServer.JoinLobby),
		unary(MethodLeaveLobby, CharaSyncServer.LeaveLobby),
		unary(MethodBroadcastSnapshot, CharaSyncServer.BroadcastSnapshot),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodLobbyEvents,
			Handler:       lobbyEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "charasync.v1",
}

// RegisterCharaSyncServer registers srv on s.
func RegisterCharaSyncServer(s grpc.ServiceRegistrar, srv CharaSyncServer) {
	s.RegisterService(&ServiceDesc, srv)
}
