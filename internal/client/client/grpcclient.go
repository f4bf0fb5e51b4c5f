package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/dmitrijs2005/charasync/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL    string
	requestTimeout time.Duration
	conn           *grpc.ClientConn
	client         rpc.CharaSyncClient
	health         healthpb.HealthClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string

	refreshMu sync.Mutex
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken = access, refresh
}

// refresh exchanges the refresh token once per expired access token;
// concurrent callers holding the same stale token share the result.
func (s *GRPCClient) refresh(ctx context.Context, stale string) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	access, refresh := s.tokens()
	if access != stale {
		return access, nil
	}
	if refresh == "" {
		return "", ErrNotLoggedIn
	}
	resp, err := s.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: refresh})
	if err != nil {
		return "", err
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return resp.AccessToken, nil
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := ctx.Deadline(); !ok && s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	access, _ := s.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	if !isTokenExpired(err) {
		return err
	}

	fresh, rerr := s.refresh(ctx, access)
	if rerr != nil {
		return err
	}
	return invoker(withAccessToken(ctx, fresh), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	access, _ := s.tokens()
	cs, err := streamer(withAccessToken(ctx, access), desc, cc, method, opts...)
	if err != nil {
		if !isTokenExpired(err) {
			return nil, err
		}
		fresh, rerr := s.refresh(ctx, access)
		if rerr != nil {
			return nil, err
		}
		return streamer(withAccessToken(ctx, fresh), desc, cc, method, opts...)
	}
	if desc == nil || desc.ClientStreams || !desc.ServerStreams {
		return cs, nil
	}
	return &retryStream{
		ClientStream: cs,
		owner:        s,
		ctx:          ctx,
		desc:         desc,
		cc:           cc,
		method:       method,
		streamer:     streamer,
		opts:         opts,
		access:       access,
	}, nil
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// retryStream reopens a server stream once with a refreshed token when the
// server rejects the expired one before sending anything.
type retryStream struct {
	grpc.ClientStream

	owner    *GRPCClient
	ctx      context.Context
	desc     *grpc.StreamDesc
	cc       *grpc.ClientConn
	method   string
	streamer grpc.Streamer
	opts     []grpc.CallOption
	access   string

	req      any
	received bool
	retried  bool
}

func (r *retryStream) SendMsg(m any) error {
	if r.req == nil {
		r.req = m
	}
	return r.ClientStream.SendMsg(m)
}

func (r *retryStream) RecvMsg(m any) error {
	err := r.ClientStream.RecvMsg(m)
	if err == nil {
		r.received = true
		return nil
	}
	if r.received || r.retried || r.req == nil || !isTokenExpired(err) {
		return err
	}
	r.retried = true

	fresh, rerr := r.owner.refresh(r.ctx, r.access)
	if rerr != nil {
		return err
	}
	cs, serr := r.streamer(withAccessToken(r.ctx, fresh), r.desc, r.cc, r.method, r.opts...)
	if serr != nil {
		return serr
	}
	if serr = cs.SendMsg(r.req); serr != nil {
		return serr
	}
	if serr = cs.CloseSend(); serr != nil {
		return serr
	}
	r.ClientStream = cs
	return r.RecvMsg(m)
}

// NewCharaSyncClient dials endpointURL. requestTimeout bounds unary calls
// whose context has no deadline; zero disables it.
func NewCharaSyncClient(endpointURL string, requestTimeout time.Duration) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, requestTimeout: requestTimeout}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewCharaSyncClient(conn)
	s.health = healthpb.NewHealthClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	return rpc.FromStatus(err)
}

func (s *GRPCClient) Register(ctx context.Context, userName string, salt []byte, verifier []byte) (string, error) {
	resp, err := s.client.Register(ctx, &rpc.RegisterRequest{Username: userName, Salt: salt, Verifier: verifier})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.UserID, nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	resp, err := s.client.GetSalt(ctx, &rpc.GetSaltRequest{Username: userName})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Salt, nil
}

// Login stores the issued tokens and returns the user id.
func (s *GRPCClient) Login(ctx context.Context, userName string, verifier []byte) (string, error) {
	resp, err := s.client.Login(ctx, &rpc.LoginRequest{Username: userName, Verifier: verifier})
	if err != nil {
		return "", s.mapError(err)
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return resp.UserID, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	if err != nil {
		return s.mapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) GetLimits(ctx context.Context) (models.Limits, error) {
	resp, err := s.client.GetLimits(ctx, &rpc.Empty{})
	if err != nil {
		return models.Limits{}, s.mapError(err)
	}
	return resp.Limits, nil
}

func recordOf(resp *rpc.RecordResponse) (*models.CharaRecord, error) {
	if resp == nil || resp.Record == nil {
		return nil, errors.New("empty record in response")
	}
	return resp.Record, nil
}

func (s *GRPCClient) CreateRecord(ctx context.Context) (*models.CharaRecord, error) {
	resp, err := s.client.CreateRecord(ctx, &rpc.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return recordOf(resp)
}

func (s *GRPCClient) UpdateRecord(ctx context.Context, id string, update models.RecordUpdate) (*models.CharaRecord, error) {
	resp, err := s.client.UpdateRecord(ctx, &rpc.UpdateRecordRequest{ID: id, Update: update})
	if err != nil {
		return nil, s.mapError(err)
	}
	return recordOf(resp)
}

func (s *GRPCClient) DeleteRecord(ctx context.Context, id string) error {
	_, err := s.client.DeleteRecord(ctx, &rpc.RecordIDRequest{ID: id})
	return s.mapError(err)
}

func (s *GRPCClient) GetOwnedRecords(ctx context.Context) ([]*models.CharaRecord, error) {
	resp, err := s.client.GetOwnedRecords(ctx, &rpc.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Records, nil
}

func (s *GRPCClient) GetSharedRecords(ctx context.Context) ([]*models.CharaRecord, error) {
	resp, err := s.client.GetSharedRecords(ctx, &rpc.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Records, nil
}

func (s *GRPCClient) FetchMetaInfo(ctx context.Context, code models.Code) (*models.RecordMeta, error) {
	resp, err := s.client.FetchMetaInfo(ctx, &rpc.CodeRequest{Code: code.String()})
	if err != nil {
		return nil, s.mapError(err)
	}
	if resp.Meta == nil {
		return nil, errors.New("empty meta in response")
	}
	return resp.Meta, nil
}

func (s *GRPCClient) DownloadRecord(ctx context.Context, code models.Code) (*models.CharaRecord, error) {
	resp, err := s.client.DownloadRecord(ctx, &rpc.CodeRequest{Code: code.String()})
	if err != nil {
		return nil, s.mapError(err)
	}
	return recordOf(resp)
}

func (s *GRPCClient) UploadAppearance(ctx context.Context, id string, payload []byte, files []models.FileEntry) (*models.CharaRecord, error) {
	resp, err := s.client.UploadAppearance(ctx, &rpc.UploadAppearanceRequest{ID: id, Appearance: payload, Files: files})
	if err != nil {
		return nil, s.mapError(err)
	}
	return recordOf(resp)
}

func (s *GRPCClient) CheckFilesExist(ctx context.Context, hashes []models.Hash) ([]models.Hash, error) {
	resp, err := s.client.CheckFilesExist(ctx, &rpc.HashesRequest{Hashes: hashes})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Hashes, nil
}

func (s *GRPCClient) UploadFiles(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error) {
	resp, err := s.client.UploadFiles(ctx, &rpc.HashesRequest{Hashes: hashes})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Tasks, nil
}

func (s *GRPCClient) MarkUploaded(ctx context.Context, hash models.Hash) error {
	_, err := s.client.MarkUploaded(ctx, &rpc.HashRequest{Hash: hash})
	return s.mapError(err)
}

func (s *GRPCClient) DownloadURLs(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error) {
	resp, err := s.client.DownloadURLs(ctx, &rpc.HashesRequest{Hashes: hashes})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Tasks, nil
}

func (s *GRPCClient) GetRelationships(ctx context.Context) (models.Relationships, error) {
	resp, err := s.client.GetRelationships(ctx, &rpc.Empty{})
	if err != nil {
		return models.Relationships{}, s.mapError(err)
	}
	return resp.Relationships, nil
}

func (s *GRPCClient) PairWith(ctx context.Context, userID string) error {
	_, err := s.client.PairWith(ctx, &rpc.UserRequest{UserID: userID})
	return s.mapError(err)
}

func (s *GRPCClient) SetPairPaused(ctx context.Context, userID string, paused bool) error {
	_, err := s.client.SetPairPaused(ctx, &rpc.PauseRequest{UserID: userID, Paused: paused})
	return s.mapError(err)
}

func (s *GRPCClient) JoinGroup(ctx context.Context, groupID, password string) error {
	_, err := s.client.JoinGroup(ctx, &rpc.GroupRequest{GroupID: groupID, Password: password})
	return s.mapError(err)
}

func (s *GRPCClient) CreateLobby(ctx context.Context) (models.LobbyInfo, error) {
	resp, err := s.client.CreateLobby(ctx, &rpc.Empty{})
	if err != nil {
		return models.LobbyInfo{}, s.mapError(err)
	}
	return resp.Lobby, nil
}

func (s *GRPCClient) JoinLobby(ctx context.Context, lobbyID string) (models.LobbyInfo, error) {
	resp, err := s.client.JoinLobby(ctx, &rpc.LobbyRequest{LobbyID: lobbyID})
	if err != nil {
		return models.LobbyInfo{}, s.mapError(err)
	}
	return resp.Lobby, nil
}

func (s *GRPCClient) LeaveLobby(ctx context.Context, lobbyID string) error {
	_, err := s.client.LeaveLobby(ctx, &rpc.LobbyRequest{LobbyID: lobbyID})
	return s.mapError(err)
}

func (s *GRPCClient) BroadcastSnapshot(ctx context.Context, lobbyID string, snap models.LobbySnapshot) error {
	_, err := s.client.BroadcastSnapshot(ctx, &rpc.BroadcastRequest{LobbyID: lobbyID, Snapshot: snap})
	return s.mapError(err)
}

func (s *GRPCClient) LobbyEvents(ctx context.Context, lobbyID string) (<-chan models.LobbyEvent, error) {
	stream, err := s.client.LobbyEvents(ctx, &rpc.LobbyRequest{LobbyID: lobbyID})
	if err != nil {
		return nil, s.mapError(err)
	}

	out := make(chan models.LobbyEvent, 16)
	go func() {
		defer close(out)
		for {
			m, err := stream.Recv()
			if err != nil {
				return
			}
			select {
			case out <- m.Event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
