package structures

import "time"

// Structure is a typed node of the organizational forest.
type Structure struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Acronym   string    `json:"acronym"`
	TypeCode  string    `json:"typeCode"`
	ParentID  *int64    `json:"parentId,omitempty"`
	Tel       string    `json:"tel"`
	Address   string    `json:"address"`
	Geo       string    `json:"geo"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpdateFields carries the optional attribute changes applied on anchor change.
type UpdateFields struct {
	Name    *string
	Acronym *string
	Tel     *string
	Address *string
	Geo     *string
}

func (f UpdateFields) apply(s *Structure) {
	if f.Name != nil {
		s.Name = *f.Name
	}
	if f.Acronym != nil {
		s.Acronym = *f.Acronym
	}
	if f.Tel != nil {
		s.Tel = *f.Tel
	}
	if f.Address != nil {
		s.Address = *f.Address
	}
	if f.Geo != nil {
		s.Geo = *f.Geo
	}
}
