package books

type CreateBookPayload struct {
	LibraryID int     `json:"library_id" validate:"required,min=1"`
	Title     string  `json:"title" validate:"required,max=300"`
	Author    string  `json:"author" validate:"required,max=200"`
	ISBN      *string `json:"isbn,omitempty" validate:"omitempty,max=20"`
	Category  *string `json:"category,omitempty" validate:"omitempty,max=100"`
}

type ListBooksQuery struct {
	Limit     int  `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset    int  `query:"offset" json:"offset,omitempty" validate:"min=0"`
	LibraryID *int `query:"library_id" json:"library_id,omitempty" validate:"omitempty,min=1"`
	Deleted   bool `query:"deleted" json:"deleted,omitempty"`
}

type RetrieveBookQuery struct {
	IncludeCopies bool `query:"include_copies" json:"include_copies,omitempty"`
}

type UpdateBookPayload struct {
	Title    *string `json:"title,omitempty" validate:"omitempty,max=300"`
	Author   *string `json:"author,omitempty" validate:"omitempty,max=200"`
	ISBN     *string `json:"isbn,omitempty" validate:"omitempty,max=20"`
	Category *string `json:"category,omitempty" validate:"omitempty,max=100"`
}
