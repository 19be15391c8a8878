// Package memory holds mutex-guarded stores used for offline mode and tests.
package memory

import (
	"github.com/attachtrack/attachtrack-api/internal/repository"
)

var (
	_ repository.PrincipalStore   = (*PrincipalStore)(nil)
	_ repository.PositionStore    = (*PositionStore)(nil)
	_ repository.ApplicationStore = (*ApplicationStore)(nil)
	_ repository.AttachmentStore  = (*AttachmentStore)(nil)
)

// NewStores returns a fresh set of empty in-memory stores
func NewStores() repository.Stores {
	return repository.Stores{
		Principals:   NewPrincipalStore(),
		Positions:    NewPositionStore(),
		Applications: NewApplicationStore(),
		Attachments:  NewAttachmentStore(),
	}
}
