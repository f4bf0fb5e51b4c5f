package client

import (
	"context"

	"github.com/dmitrijs2005/charasync/internal/models"
)

// AuthClient covers the login handshake.
type AuthClient interface {
	Register(ctx context.Context, username string, salt []byte, verifier []byte) (string, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (string, error)
	Ping(ctx context.Context) error
}

// RecordClient covers the remote record store.
type RecordClient interface {
	GetLimits(ctx context.Context) (models.Limits, error)
	CreateRecord(ctx context.Context) (*models.CharaRecord, error)
	UpdateRecord(ctx context.Context, id string, update models.RecordUpdate) (*models.CharaRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	GetOwnedRecords(ctx context.Context) ([]*models.CharaRecord, error)
	GetSharedRecords(ctx context.Context) ([]*models.CharaRecord, error)
	FetchMetaInfo(ctx context.Context, code models.Code) (*models.RecordMeta, error)
	DownloadRecord(ctx context.Context, code models.Code) (*models.CharaRecord, error)
	UploadAppearance(ctx context.Context, id string, payload []byte, files []models.FileEntry) (*models.CharaRecord, error)
}

// FileClient covers the content-addressed file store.
type FileClient interface {
	// CheckFilesExist returns the subset of hashes the store does not hold.
	CheckFilesExist(ctx context.Context, hashes []models.Hash) ([]models.Hash, error)
	// UploadFiles returns upload tasks for the hashes still absent.
	UploadFiles(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error)
	MarkUploaded(ctx context.Context, hash models.Hash) error
	DownloadURLs(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error)
}

// RelationshipClient covers pairs and groups.
type RelationshipClient interface {
	GetRelationships(ctx context.Context) (models.Relationships, error)
	PairWith(ctx context.Context, userID string) error
	SetPairPaused(ctx context.Context, userID string, paused bool) error
	JoinGroup(ctx context.Context, groupID, password string) error
}

// LobbyClient covers the shared lobby session.
type LobbyClient interface {
	CreateLobby(ctx context.Context) (models.LobbyInfo, error)
	JoinLobby(ctx context.Context, lobbyID string) (models.LobbyInfo, error)
	LeaveLobby(ctx context.Context, lobbyID string) error
	BroadcastSnapshot(ctx context.Context, lobbyID string, snap models.LobbySnapshot) error
	// LobbyEvents streams events until ctx is done or the server ends the
	// stream; the channel is closed then.
	LobbyEvents(ctx context.Context, lobbyID string) (<-chan models.LobbyEvent, error)
}

type Client interface {
	AuthClient
	RecordClient
	FileClient
	RelationshipClient
	LobbyClient
	Close() error
}
