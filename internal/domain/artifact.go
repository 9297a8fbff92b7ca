package domain

import "time"

// Artifact is one produced image held in memory until the next request.
type Artifact struct {
	ID        string    `json:"id"`
	Data      []byte    `json:"data"`
	Prompt    string    `json:"prompt"`
	FileName  string    `json:"file_name"`
	MediaType string    `json:"media_type"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// ImagePayload is what a generation backend returns for one image.
type ImagePayload struct {
	Data      []byte
	MediaType string
}
