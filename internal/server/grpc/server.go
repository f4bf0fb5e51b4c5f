// Package grpc exposes the charasync services over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/dmitrijs2005/charasync/internal/rpc"
	"github.com/dmitrijs2005/charasync/internal/server/lobby"
	"github.com/dmitrijs2005/charasync/internal/server/metrics"
	servermodels "github.com/dmitrijs2005/charasync/internal/server/models"
	"github.com/dmitrijs2005/charasync/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// UserService is the account side of the server.
type UserService interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*servermodels.User, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type RecordService interface {
	Limits() models.Limits
	Create(ctx context.Context, owner string) (*models.CharaRecord, error)
	Update(ctx context.Context, owner, id string, update models.RecordUpdate) (*models.CharaRecord, error)
	UploadAppearance(ctx context.Context, owner, id string, payload []byte, files []models.FileEntry) (*models.CharaRecord, error)
	Delete(ctx context.Context, owner, id string) error
	Owned(ctx context.Context, owner string) ([]*models.CharaRecord, error)
	Shared(ctx context.Context, viewer string) ([]*models.CharaRecord, error)
	FetchMeta(ctx context.Context, viewer string, code models.Code) (*models.RecordMeta, error)
	Download(ctx context.Context, viewer string, code models.Code) (*models.CharaRecord, error)
}

type FileService interface {
	Missing(ctx context.Context, hashes []models.Hash) ([]models.Hash, error)
	UploadTasks(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error)
	MarkUploaded(ctx context.Context, hash models.Hash) error
	DownloadURLs(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error)
}

type RelationService interface {
	Relationships(ctx context.Context, userID string) (models.Relationships, error)
	PairWith(ctx context.Context, userID, other string) error
	SetPairPaused(ctx context.Context, userID, other string, paused bool) error
	JoinGroup(ctx context.Context, userID, groupID, password string) error
}

type LobbyService interface {
	Create(ctx context.Context, userID string) (models.LobbyInfo, error)
	Join(ctx context.Context, lobbyID, userID string) (models.LobbyInfo, error)
	Leave(ctx context.Context, lobbyID, userID string) error
	Broadcast(ctx context.Context, lobbyID, userID string, snap models.LobbySnapshot) error
	Events(ctx context.Context, lobbyID, userID string) (<-chan models.LobbyEvent, error)
}

// Services bundles the business services the server dispatches to.
type Services struct {
	Users     UserService
	Records   RecordService
	Files     FileService
	Relations RelationService
	Lobbies   LobbyService
}

type GRPCServer struct {
	address   string
	users     UserService
	records   RecordService
	files     FileService
	relations RelationService
	lobbies   LobbyService
	metrics   *metrics.Metrics
	logger    logging.Logger
	jwtSecret []byte

	// closed when Serve begins shutting down so open streams can end
	shutdown chan struct{}
}

var (
	_ rpc.CharaSyncServer = (*GRPCServer)(nil)

	_ UserService     = (*services.UserService)(nil)
	_ RecordService   = (*services.RecordService)(nil)
	_ FileService     = (*services.FileService)(nil)
	_ RelationService = (*services.RelationService)(nil)
	_ LobbyService    = (*lobby.Service)(nil)
)

func NewGRPCServer(a string, l logging.Logger, svc Services, m *metrics.Metrics, secretKey string) *GRPCServer {
	if m == nil {
		m = metrics.New()
	}
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     svc.Users,
		records:   svc.Records,
		files:     svc.Files,
		relations: svc.Relations,
		lobbies:   svc.Lobbies,
		metrics:   m,
		jwtSecret: []byte(secretKey),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.observeInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.observeStreamInterceptor, s.streamAccessTokenInterceptor),
	)
	rpc.RegisterCharaSyncServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	s.shutdown = make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		hs.Shutdown()
		close(s.shutdown)
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
