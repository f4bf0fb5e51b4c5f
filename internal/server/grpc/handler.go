package grpc

import (
	"context"

	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/dmitrijs2005/charasync/internal/rpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fail converts err for the wire and logs anything that is not a known
// domain error.
func (s *GRPCServer) fail(ctx context.Context, method string, err error) error {
	st := rpc.ToStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.Error(ctx, "internal error", "method", method, "error", err)
	}
	return st
}

func (s *GRPCServer) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	s.logger.Info(ctx, "Registration request", "username", req.Username)

	user, err := s.users.Register(ctx, req.Username, req.Salt, req.Verifier)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodRegister, err)
	}
	return &rpc.RegisterResponse{UserID: user.ID}, nil
}

func (s *GRPCServer) GetSalt(ctx context.Context, req *rpc.GetSaltRequest) (*rpc.GetSaltResponse, error) {
	salt, err := s.users.GetSalt(ctx, req.Username)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodGetSalt, err)
	}
	return &rpc.GetSaltResponse{Salt: salt}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	tokens, err := s.users.Login(ctx, req.Username, req.Verifier)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodLogin, err)
	}
	return &rpc.LoginResponse{UserID: tokens.UserID, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *rpc.RefreshTokenRequest) (*rpc.LoginResponse, error) {
	tokens, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodRefreshToken, err)
	}
	return &rpc.LoginResponse{UserID: tokens.UserID, AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *GRPCServer) GetLimits(_ context.Context, _ *rpc.Empty) (*rpc.LimitsResponse, error) {
	return &rpc.LimitsResponse{Limits: s.records.Limits()}, nil
}

func (s *GRPCServer) CreateRecord(ctx context.Context, _ *rpc.Empty) (*rpc.RecordResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.Create(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodCreateRecord, err)
	}
	return &rpc.RecordResponse{Record: rec}, nil
}

func (s *GRPCServer) UpdateRecord(ctx context.Context, req *rpc.UpdateRecordRequest) (*rpc.RecordResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.Update(ctx, userID, req.ID, req.Update)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodUpdateRecord, err)
	}
	return &rpc.RecordResponse{Record: rec}, nil
}

func (s *GRPCServer) DeleteRecord(ctx context.Context, req *rpc.RecordIDRequest) (*rpc.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.records.Delete(ctx, userID, req.ID); err != nil {
		return nil, s.fail(ctx, rpc.MethodDeleteRecord, err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) GetOwnedRecords(ctx context.Context, _ *rpc.Empty) (*rpc.RecordsResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.Owned(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodGetOwnedRecords, err)
	}
	return &rpc.RecordsResponse{Records: recs}, nil
}

func (s *GRPCServer) GetSharedRecords(ctx context.Context, _ *rpc.Empty) (*rpc.RecordsResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.Shared(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodGetSharedRecords, err)
	}
	return &rpc.RecordsResponse{Records: recs}, nil
}

func (s *GRPCServer) FetchMetaInfo(ctx context.Context, req *rpc.CodeRequest) (*rpc.MetaResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	code, err := models.ParseCode(req.Code)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodFetchMetaInfo, err)
	}
	meta, err := s.records.FetchMeta(ctx, userID, code)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodFetchMetaInfo, err)
	}
	return &rpc.MetaResponse{Meta: meta}, nil
}

func (s *GRPCServer) DownloadRecord(ctx context.Context, req *rpc.CodeRequest) (*rpc.RecordResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	code, err := models.ParseCode(req.Code)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodDownloadRecord, err)
	}
	rec, err := s.records.Download(ctx, userID, code)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodDownloadRecord, err)
	}
	return &rpc.RecordResponse{Record: rec}, nil
}

func (s *GRPCServer) UploadAppearance(ctx context.Context, req *rpc.UploadAppearanceRequest) (*rpc.RecordResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.UploadAppearance(ctx, userID, req.ID, req.Appearance, req.Files)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodUploadAppearance, err)
	}
	return &rpc.RecordResponse{Record: rec}, nil
}

func (s *GRPCServer) CheckFilesExist(ctx context.Context, req *rpc.HashesRequest) (*rpc.HashesResponse, error) {
	missing, err := s.files.Missing(ctx, req.Hashes)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodCheckFilesExist, err)
	}
	return &rpc.HashesResponse{Hashes: missing}, nil
}

func (s *GRPCServer) UploadFiles(ctx context.Context, req *rpc.HashesRequest) (*rpc.TransferTasksResponse, error) {
	tasks, err := s.files.UploadTasks(ctx, req.Hashes)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodUploadFiles, err)
	}
	return &rpc.TransferTasksResponse{Tasks: tasks}, nil
}

func (s *GRPCServer) MarkUploaded(ctx context.Context, req *rpc.HashRequest) (*rpc.Empty, error) {
	if err := s.files.MarkUploaded(ctx, req.Hash); err != nil {
		return nil, s.fail(ctx, rpc.MethodMarkUploaded, err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) DownloadURLs(ctx context.Context, req *rpc.HashesRequest) (*rpc.TransferTasksResponse, error) {
	tasks, err := s.files.DownloadURLs(ctx, req.Hashes)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodDownloadURLs, err)
	}
	return &rpc.TransferTasksResponse{Tasks: tasks}, nil
}

func (s *GRPCServer) GetRelationships(ctx context.Context, _ *rpc.Empty) (*rpc.RelationshipsResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rel, err := s.relations.Relationships(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodGetRelationships, err)
	}
	return &rpc.RelationshipsResponse{Relationships: rel}, nil
}

func (s *GRPCServer) PairWith(ctx context.Context, req *rpc.UserRequest) (*rpc.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.relations.PairWith(ctx, userID, req.UserID); err != nil {
		return nil, s.fail(ctx, rpc.MethodPairWith, err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) SetPairPaused(ctx context.Context, req *rpc.PauseRequest) (*rpc.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.relations.SetPairPaused(ctx, userID, req.UserID, req.Paused); err != nil {
		return nil, s.fail(ctx, rpc.MethodSetPairPaused, err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) JoinGroup(ctx context.Context, req *rpc.GroupRequest) (*rpc.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.relations.JoinGroup(ctx, userID, req.GroupID, req.Password); err != nil {
		return nil, s.fail(ctx, rpc.MethodJoinGroup, err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) CreateLobby(ctx context.Context, _ *rpc.Empty) (*rpc.LobbyResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	info, err := s.lobbies.Create(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodCreateLobby, err)
	}
	return &rpc.LobbyResponse{Lobby: info}, nil
}

func (s *GRPCServer) JoinLobby(ctx context.Context, req *rpc.LobbyRequest) (*rpc.LobbyResponse, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	info, err := s.lobbies.Join(ctx, req.LobbyID, userID)
	if err != nil {
		return nil, s.fail(ctx, rpc.MethodJoinLobby, err)
	}
	return &rpc.LobbyResponse{Lobby: info}, nil
}

func (s *GRPCServer) LeaveLobby(ctx context.Context, req *rpc.LobbyRequest) (*rpc.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.lobbies.Leave(ctx, req.LobbyID, userID); err != nil {
		return nil, s.fail(ctx, rpc.MethodLeaveLobby, err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) BroadcastSnapshot(ctx context.Context, req *rpc.BroadcastRequest) (*rpc.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.lobbies.Broadcast(ctx, req.LobbyID, userID, req.Snapshot); err != nil {
		return nil, s.fail(ctx, rpc.MethodBroadcastSnapshot, err)
	}
	return &rpc.Empty{}, nil
}

// LobbyEvents forwards lobby events to the caller until the stream ends,
// the caller leaves or the lobby closes.
func (s *GRPCServer) LobbyEvents(req *rpc.LobbyRequest, stream rpc.LobbyEventsServer) error {
	ctx := stream.Context()
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return err
	}
	events, err := s.lobbies.Events(ctx, req.LobbyID, userID)
	if err != nil {
		return s.fail(ctx, rpc.MethodLobbyEvents, err)
	}
	for {
		select {
		case <-s.shutdown:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.Send(&rpc.LobbyEventMessage{Event: ev}); err != nil {
				return err
			}
		}
	}
}
