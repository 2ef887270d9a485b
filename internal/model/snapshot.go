package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Snapshot is one payload observed from the upstream endpoint.
type Snapshot struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // UUID
	FetchedAt time.Time `gorm:"not null;index" json:"fetchedAt"`
	Body      string    `gorm:"type:text;not null" json:"-"` // Raw JSON
	Digest    string    `gorm:"size:64;not null;index" json:"digest"`
	Changed   bool      `gorm:"not null" json:"changed"`
}

// Payload decodes the stored body, keeping numbers as json.Number.
func (s Snapshot) Payload() (any, error) {
	dec := json.NewDecoder(strings.NewReader(s.Body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
