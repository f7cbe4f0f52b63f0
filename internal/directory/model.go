package directory

import (
	"errors"
	"time"
)

// Directory kinds, one Mongo collection each.
const (
	KindClient   = "clients"
	KindProject  = "projects"
	KindMarketer = "marketers"
)

var (
	ErrNotFound    = errors.New("directory record not found")
	ErrInvalidKind = errors.New("invalid directory kind")
)

var validKinds = map[string]struct{}{
	KindClient:   {},
	KindProject:  {},
	KindMarketer: {},
}

func IsValidKind(value string) bool {
	_, ok := validKinds[value]
	return ok
}

// Record is a directory entry. Clients and marketers carry contact details;
// projects carry a location. The pipeline stores only the id plus a name
// snapshot taken at lead creation.
type Record struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Location  string    `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

type CreateRecordRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Location string `json:"location"`
}

type UpdateRecordRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Location string `json:"location"`
}
