package handler

import (
	"database/sql"

	"github.com/hitoshi/renraku/internal/auth"
	"github.com/hitoshi/renraku/internal/metrics"
	"github.com/hitoshi/renraku/internal/repository"
	"github.com/hitoshi/renraku/internal/user"
)

// サービス層・リポジトリ層がhandlerのインターフェースを満たすことを
// コンパイル時に保証する。

var _ AuthServiceInterface = (*auth.Service)(nil)
var _ UserServiceInterface = (*auth.Service)(nil)
var _ UserDirectoryInterface = (*user.Service)(nil)
var _ StatusStoreInterface = repository.StatusCheckRepository(nil)
var _ PhoneUpdateRecorder = (*metrics.Collector)(nil)
var _ DBPinger = (*sql.DB)(nil)
