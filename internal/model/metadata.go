package model

// Metadata is the caption record stored next to every image.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
