package postgres

import "github.com/attachtrack/attachtrack-api/internal/repository"

var (
	_ repository.PrincipalStore   = (*PrincipalStore)(nil)
	_ repository.PositionStore    = (*PositionStore)(nil)
	_ repository.ApplicationStore = (*ApplicationStore)(nil)
	_ repository.AttachmentStore  = (*AttachmentStore)(nil)
)
