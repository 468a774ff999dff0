package instance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maoni/core"
)

// Instance is an academic feedback round, e.g. "2020-21 SEM I". Exactly one
// instance is selected at a time; all portal activity happens within it.
type Instance struct {
	ID         string    `json:"id"`
	Name       string    `json:"year"`
	IsLatest   bool      `json:"is_latest"`
	IsSelected bool      `json:"is_selected"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

type NewInstance struct {
	Name string `json:"year" validate:"required"`
}

func (ni *NewInstance) Validate(validate *validator.Validate) error {
	ni.Name = core.CleanString(ni.Name)
	return validate.Struct(ni)
}

// GetFilter finds a single instance; fields are tried in order.
type GetFilter struct {
	ID       string
	Name     string
	Selected bool
}
