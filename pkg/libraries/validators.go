package libraries

type CreateLibraryPayload struct {
	Name                string   `json:"name" validate:"required,max=100"`
	Status              *string  `json:"status,omitempty" validate:"omitempty,oneof=active inactive maintenance"`
	MaxBorrowLimit      int      `json:"max_borrow_limit" validate:"min=0"`
	BorrowDurationDays  int      `json:"borrow_duration_days" validate:"required,min=1"`
	FinePerDay          *float64 `json:"fine_per_day,omitempty" validate:"omitempty,min=0"`
	ReservationHoldDays int      `json:"reservation_hold_days" validate:"required,min=1"`
}

type ListLibrariesQuery struct {
	Limit   int     `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset  int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status  *string `query:"status" json:"status,omitempty" validate:"omitempty,oneof=active inactive maintenance"`
	Deleted bool    `query:"deleted" json:"deleted,omitempty"`
}

type UpdateLibraryPayload struct {
	Name                *string  `json:"name,omitempty" validate:"omitempty,max=100"`
	Status              *string  `json:"status,omitempty" validate:"omitempty,oneof=active inactive maintenance"`
	MaxBorrowLimit      *int     `json:"max_borrow_limit,omitempty" validate:"omitempty,min=0"`
	BorrowDurationDays  *int     `json:"borrow_duration_days,omitempty" validate:"omitempty,min=1"`
	FinePerDay          *float64 `json:"fine_per_day,omitempty" validate:"omitempty,min=0"`
	ReservationHoldDays *int     `json:"reservation_hold_days,omitempty" validate:"omitempty,min=1"`
}
