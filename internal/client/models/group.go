package models

import (
	"slices"
	"time"
)

// Group is a named multi-member channel. Members keep insertion order and
// may contain duplicates.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	Admin     string    `json:"admin"`
	CreatedAt time.Time `json:"createdAt"`
}

func (g Group) HasMember(username string) bool {
	return slices.Contains(g.Members, username)
}
