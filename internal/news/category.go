package news

import "time"

const DefaultCategory = "general"

type Category struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Label     string    `json:"label"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	Parent    string    `json:"parent,omitempty"`
	Order     int       `json:"order"`
	Active    bool      `json:"active"`
	Language  string    `json:"language,omitempty"`
	IsDynamic bool      `json:"isDynamic"`
	CreatedAt time.Time `json:"createdAt"`
}
