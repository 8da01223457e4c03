package models

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DocumentSnapshot is an immutable frozen copy of a document's state, taken
// just before a versioned revision is applied. The live document references
// its snapshots by document_id only; snapshots never reference each other.
type DocumentSnapshot struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	DocumentID snowflake.ID   `gorm:"not null;uniqueIndex:idx_snapshots_doc_version"`
	Version    int            `gorm:"not null;uniqueIndex:idx_snapshots_doc_version"`
	Body       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
}
