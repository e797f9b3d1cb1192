package reservations

type CreateReservationPayload struct {
	UserID   int     `json:"user_id" validate:"required,min=1"`
	UserType string  `json:"user_type" validate:"required,oneof=student teacher staff"`
	Notes    *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type ListReservationsQuery struct {
	Limit  int     `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	CopyID *int    `query:"copy_id" json:"copy_id,omitempty" validate:"omitempty,min=1"`
	UserID *int    `query:"user_id" json:"user_id,omitempty" validate:"omitempty,min=1"`
	Status *string `query:"status" json:"status,omitempty" validate:"omitempty,oneof=pending fulfilled expired cancelled"`
}

type RetrieveReservationQuery struct {
	IncludeCopy bool `query:"include_copy" json:"include_copy,omitempty"`
}
