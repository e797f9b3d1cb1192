package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID        int         `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	LibraryID int         `bun:",nullzero" json:"library_id"`
	Library   *Library    `bun:"rel:belongs-to" json:"library,omitempty"`
	Title     string      `bun:",nullzero" json:"title"`
	Author    string      `bun:",nullzero" json:"author"`
	ISBN      *string     `json:"isbn"`
	Category  *string     `json:"category"`
	Copies    []*BookCopy `bun:"rel:has-many" json:"copies,omitempty"`
	DeletedAt *time.Time  `json:"deleted_at,omitempty"`
}
