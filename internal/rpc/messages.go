package rpc

import "github.com/dmitrijs2005/charasync/internal/models"

type Empty struct{}

type RegisterRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

type GetSaltRequest struct {
	Username string `json:"username"`
}

type GetSaltResponse struct {
	Salt []byte `json:"salt"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier"`
}

type LoginResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LimitsResponse struct {
	Limits models.Limits `json:"limits"`
}

type RecordIDRequest struct {
	ID string `json:"id"`
}

type UpdateRecordRequest struct {
	ID     string              `json:"id"`
	Update models.RecordUpdate `json:"update"`
}

type UploadAppearanceRequest struct {
	ID         string             `json:"id"`
	Appearance []byte             `json:"appearance"`
	Files      []models.FileEntry `json:"files"`
}

type RecordResponse struct {
	Record *models.CharaRecord `json:"record"`
}

type RecordsResponse struct {
	Records []*models.CharaRecord `json:"records"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type MetaResponse struct {
	Meta *models.RecordMeta `json:"meta"`
}

type HashesRequest struct {
	Hashes []models.Hash `json:"hashes"`
}

type HashesResponse struct {
	Hashes []models.Hash `json:"hashes"`
}

type HashRequest struct {
	Hash models.Hash `json:"hash"`
}

type TransferTasksResponse struct {
	Tasks []models.TransferTask `json:"tasks"`
}

type RelationshipsResponse struct {
	Relationships models.Relationships `json:"relationships"`
}

type UserRequest struct {
	UserID string `json:"user_id"`
}

type PauseRequest struct {
	UserID string `json:"user_id"`
	Paused bool   `json:"paused"`
}

type GroupRequest struct {
	GroupID  string `json:"group_id"`
	Password string `json:"password"`
}

type LobbyRequest struct {
	LobbyID string `json:"lobby_id"`
}

type LobbyResponse struct {
	Lobby models.LobbyInfo `json:"lobby"`
}

type BroadcastRequest struct {
	LobbyID  string               `json:"lobby_id"`
	Snapshot models.LobbySnapshot `json:"snapshot"`
}

// LobbyEventMessage carries one lobby event on the LobbyEvents stream.
type LobbyEventMessage struct {
	Event models.LobbyEvent `json:"event"`
}
