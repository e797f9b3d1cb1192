package borrowings

type CreateBorrowingPayload struct {
	BorrowerID   int    `json:"borrower_id" validate:"required,min=1"`
	BorrowerType string `json:"borrower_type" validate:"required,oneof=student teacher staff"`
}

type ReturnBorrowingPayload struct {
	ReturnDate *string `json:"return_date,omitempty" validate:"omitempty,date"`
}

type ListBorrowingsQuery struct {
	Limit      int     `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset     int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	CopyID     *int    `query:"copy_id" json:"copy_id,omitempty" validate:"omitempty,min=1"`
	BorrowerID *int    `query:"borrower_id" json:"borrower_id,omitempty" validate:"omitempty,min=1"`
	Status     *string `query:"status" json:"status,omitempty" validate:"omitempty,oneof=borrowed returned overdue lost"`
}

type RetrieveBorrowingQuery struct {
	IncludeCopy bool `query:"include_copy" json:"include_copy,omitempty"`
}
