package role

type CreateRequest struct {
	Label       string  `json:"label" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type UpdateRequest struct {
	Label       *string `json:"label" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}
