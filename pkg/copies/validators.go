package copies

type CreateCopyPayload struct {
	BookID     int     `json:"book_id" validate:"required,min=1"`
	CopyNumber int     `json:"copy_number" validate:"required,min=1"`
	Condition  *string `json:"condition,omitempty" validate:"omitempty,oneof=excellent good fair poor damaged"`
	Location   *string `json:"location,omitempty" validate:"omitempty,max=100"`
}

type ListCopiesQuery struct {
	Limit  int     `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	BookID *int    `query:"book_id" json:"book_id,omitempty" validate:"omitempty,min=1"`
	Status *string `query:"status" json:"status,omitempty" validate:"omitempty,oneof=available reserved borrowed maintenance lost"`
}

type RetrieveCopyQuery struct {
	IncludeBook bool `query:"include_book" json:"include_book,omitempty"`
}

type UpdateCopyPayload struct {
	Condition *string `json:"condition,omitempty" validate:"omitempty,oneof=excellent good fair poor damaged"`
	Location  *string `json:"location,omitempty" validate:"omitempty,max=100"`
}

type SetCopyStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=available maintenance lost"`
}
