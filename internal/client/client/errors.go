package client

import (
	"errors"

	"github.com/dmitrijs2005/charasync/internal/common"
)

var (
	ErrUnavailable           = common.ErrTransportFailure
	ErrUnauthorized          = common.ErrUnauthorized
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
	ErrNotLoggedIn           = errors.New("not logged in")
)
