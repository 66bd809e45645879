package driven

import (
	"github.com/alorle/pvr-manager/internal/application"
	"github.com/alorle/pvr-manager/internal/group"
)

// Compile-time interface checks.
var (
	_ group.Repository         = (*GroupBoltDBRepository)(nil)
	_ application.GroupCatalog = (*GroupBoltDBRepository)(nil)
	_ group.BackendClients     = (*BackendRegistry)(nil)
	_ group.EventSink          = (*LoggingEventSink)(nil)
)
