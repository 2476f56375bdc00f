package videos

import (
	"github.com/google/uuid"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/models"
)

// canAccess applies the record access rule: tenant must match, then admin
// and editor may act on any record in their tenant while viewer may act only
// on records it uploaded.
func canAccess(v *models.Video, userID uuid.UUID, tenant, role string) bool {
	if v.Tenant != tenant {
		return false
	}
	switch role {
	case auth.RoleAdmin, auth.RoleEditor:
		return true
	case auth.RoleViewer:
		return v.OwnerID == userID
	}
	return false
}
