package videos

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/models"
)

func TestCanAccess(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	v := &models.Video{ID: uuid.New(), Tenant: "acme", OwnerID: owner}

	tests := []struct {
		name   string
		userID uuid.UUID
		tenant string
		role   string
		want   bool
	}{
		{"admin in tenant", stranger, "acme", auth.RoleAdmin, true},
		{"editor in tenant", stranger, "acme", auth.RoleEditor, true},
		{"viewer owning the record", owner, "acme", auth.RoleViewer, true},
		{"viewer not owning the record", stranger, "acme", auth.RoleViewer, false},
		{"admin from another tenant", stranger, "globex", auth.RoleAdmin, false},
		{"editor from another tenant", stranger, "globex", auth.RoleEditor, false},
		{"owner from another tenant", owner, "globex", auth.RoleViewer, false},
		{"unknown role", owner, "acme", "superuser", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canAccess(v, tt.userID, tt.tenant, tt.role))
		})
	}
}
