package clients

import "strings"

// Input is the create/update payload for a client.
type Input struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
	Phone     string `json:"phone" validate:"max=30"`
	Address   string `json:"address" validate:"max=300"`
	Notes     string `json:"notes" validate:"max=2000"`
}

func (in Input) normalized() Input {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

// ListFilter narrows the client list.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}
