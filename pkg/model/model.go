package model

import (
	"time"
)

// Tour represents a generated walking tour as returned by the backend.
type Tour struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	GuideID     string `json:"guide_id"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// Place is a point of interest attached to a tour record.
type Place struct {
	Name string `json:"name"`
	Lat  string `json:"lat"`
	Lng  string `json:"lng"`
}

// TourRecord is one server-generated block of narration for the current tour step.
type TourRecord struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	CreatedAt string  `json:"created_at"`
	Places    []Place `json:"places,omitempty"`
	AudioData string  `json:"audio_data,omitempty"`

	Point struct {
		Lat string `json:"lat"`
		Lng string `json:"lng"`
	} `json:"point"`
}

// NarrationChunk is the part of a TourRecord the playback pipeline consumes.
// The message is guaranteed sentence-terminated before it reaches the buffers.
type NarrationChunk struct {
	Message   string
	CreatedAt time.Time
}

// PositionSample is one normalized position update, regardless of whether it
// came from a live GPS watch or a manually placed marker.
type PositionSample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}
