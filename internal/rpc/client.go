package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// CharaSyncClient is the typed client for the CharaSync service.
type CharaSyncClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*LoginResponse, error)

	GetLimits(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*LimitsResponse, error)
	CreateRecord(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RecordResponse, error)
	UpdateRecord(ctx context.Context, in *UpdateRecordRequest, opts ...grpc.CallOption) (*RecordResponse, error)
	DeleteRecord(ctx context.Context, in *RecordIDRequest, opts ...grpc.CallOption) (*Empty, error)
	GetOwnedRecords(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RecordsResponse, error)
	GetSharedRecords(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RecordsResponse, error)
	FetchMetaInfo(ctx context.Context, in *CodeRequest, opts ...grpc.CallOption) (*MetaResponse, error)
	DownloadRecord(ctx context.Context, in *CodeRequest, opts ...grpc.CallOption) (*RecordResponse, error)
	UploadAppearance(ctx context.Context, in *UploadAppearanceRequest, opts ...grpc.CallOption) (*RecordResponse, error)

	CheckFilesExist(ctx context.Context, in *HashesRequest, opts ...grpc.CallOption) (*HashesResponse, error)
	UploadFiles(ctx context.Context, in *HashesRequest, opts ...grpc.CallOption) (*TransferTasksResponse, error)
	MarkUploaded(ctx context.Context, in *HashRequest, opts ...grpc.CallOption) (*Empty, error)
	DownloadURLs(ctx context.Context, in *HashesRequest, opts ...grpc.CallOption) (*TransferTasksResponse, error)

	GetRelationships(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RelationshipsResponse, error)
	PairWith(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*Empty, error)
	SetPairPaused(ctx context.Context, in *PauseRequest, opts ...grpc.CallOption) (*Empty, error)
	JoinGroup(ctx context.Context, in *GroupRequest, opts ...grpc.CallOption) (*Empty, error)

	CreateLobby(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*LobbyResponse, error)
	JoinLobby(ctx context.Context, in *LobbyRequest, opts ...grpc.CallOption) (*LobbyResponse, error)
	LeaveLobby(ctx context.Context, in *LobbyRequest, opts ...grpc.CallOption) (*Empty, error)
	BroadcastSnapshot(ctx context.Context, in *BroadcastRequest, opts ...grpc.CallOption) (*Empty, error)
	LobbyEvents(ctx context.Context, in *LobbyRequest, opts ...grpc.CallOption) (LobbyEventsClient, error)
}

// LobbyEventsClient is the receiving side of the LobbyEvents stream.
type LobbyEventsClient interface {
	Recv() (*LobbyEventMessage, error)
	grpc.ClientStream
}

type stub struct {
	cc grpc.ClientConnInterface
}

// NewCharaSyncClient returns a client that speaks the JSON codec over cc.
func NewCharaSyncClient(cc grpc.ClientConnInterface) CharaSyncClient {
	return &stub{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *stub) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *stub) GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error) {
	return invoke[GetSaltResponse](ctx, c.cc, MethodGetSalt, in, opts)
}

func (c *stub) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *stub) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, MethodRefreshToken, in, opts)
}

func (c *stub) GetLimits(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*LimitsResponse, error) {
	return invoke[LimitsResponse](ctx, c.cc, MethodGetLimits, in, opts)
}

func (c *stub) CreateRecord(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RecordResponse, error) {
	return invoke[RecordResponse](ctx, c.cc, MethodCreateRecord, in, opts)
}

func (c *stub) UpdateRecord(ctx context.Context, in *UpdateRecordRequest, opts ...grpc.CallOption) (*RecordResponse, error) {
	return invoke[RecordResponse](ctx, c.cc, MethodUpdateRecord, in, opts)
}

func (c *stub) DeleteRecord(ctx context.Context, in *RecordIDRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodDeleteRecord, in, opts)
}

func (c *stub) GetOwnedRecords(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RecordsResponse, error) {
	return invoke[RecordsResponse](ctx, c.cc, MethodGetOwnedRecords, in, opts)
}

func (c *stub) GetSharedRecords(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RecordsResponse, error) {
	return invoke[RecordsResponse](ctx, c.cc, MethodGetSharedRecords, in, opts)
}

func (c *stub) FetchMetaInfo(ctx context.Context, in *CodeRequest, opts ...grpc.CallOption) (*MetaResponse, error) {
	return invoke[MetaResponse](ctx, c.cc, MethodFetchMetaInfo, in, opts)
}

func (c *stub) DownloadRecord(ctx context.Context, in *CodeRequest, opts ...grpc.CallOption) (*RecordResponse, error) {
	return invoke[RecordResponse](ctx, c.cc, MethodDownloadRecord, in, opts)
}

func (c *stub) UploadAppearance(ctx context.Context, in *UploadAppearanceRequest, opts ...grpc.CallOption) (*RecordResponse, error) {
	return invoke[RecordResponse](ctx, c.cc, MethodUploadAppearance, in, opts)
}

func (c *stub) CheckFilesExist(ctx context.Context, in *HashesRequest, opts ...grpc.CallOption) (*HashesResponse, error) {
	return invoke[HashesResponse](ctx, c.cc, MethodCheckFilesExist, in, opts)
}

func (c *stub) UploadFiles(ctx context.Context, in *HashesRequest, opts ...grpc.CallOption) (*TransferTasksResponse, error) {
	return invoke[TransferTasksResponse](ctx, c.cc, MethodUploadFiles, in, opts)
}

func (c *stub) MarkUploaded(ctx context.Context, in *HashRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodMarkUploaded, in, opts)
}

func (c *stub) DownloadURLs(ctx context.Context, in *HashesRequest, opts ...grpc.CallOption) (*TransferTasksResponse, error) {
	return invoke[TransferTasksResponse](ctx, c.cc, MethodDownloadURLs, in, opts)
}

func (c *stub) GetRelationships(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RelationshipsResponse, error) {
	return invoke[RelationshipsResponse](ctx, c.cc, MethodGetRelationships, in, opts)
}

func (c *stub) PairWith(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodPairWith, in, opts)
}

func (c *stub) SetPairPaused(ctx context.Context, in *PauseRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodSetPairPaused, in, opts)
}

func (c *stub) JoinGroup(ctx context.Context, in *GroupRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodJoinGroup, in, opts)
}

func (c *stub) CreateLobby(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*LobbyResponse, error) {
	return invoke[LobbyResponse](ctx, c.cc, MethodCreateLobby, in, opts)
}

func (c *stub) JoinLobby(ctx context.Context, in *LobbyRequest, opts ...grpc.CallOption) (*LobbyResponse, error) {
	return invoke[LobbyResponse](ctx, c.cc, MethodJoinLobby, in, opts)
}

func (c *stub) LeaveLobby(ctx context.Context, in *LobbyRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodLeaveLobby, in, opts)
}

func (c *stub) BroadcastSnapshot(ctx context.Context, in *BroadcastRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodBroadcastSnapshot, in, opts)
}

func (c *stub) LobbyEvents(ctx context.Context, in *LobbyRequest, opts ...grpc.CallOption) (LobbyEventsClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod(MethodLobbyEvents), opts...)
	if err != nil {
		return nil, err
	}
	x := &lobbyEventsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type lobbyEventsClient struct {
	grpc.ClientStream
}

func (x *lobbyEventsClient) Recv() (*LobbyEventMessage, error) {
	m := new(LobbyEventMessage)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
