package webui

import (
	"time"

	"sd_backend/imagegen"
)

// Event types pushed to /ws clients.
const (
	EventImageGenerated = "image.generated"
	EventImageDeleted   = "image.deleted"
)

// WSMessage is the envelope of every event.
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewWSMessage stamps a message with the current time.
func NewWSMessage(msgType string, data interface{}) WSMessage {
	return WSMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// ImageGeneratedData announces one new image.
type ImageGeneratedData struct {
	RequestID    string                  `json:"requestId,omitempty"`
	ThumbnailURL string                  `json:"thumbnailUrl"`
	Image        imagegen.GeneratedImage `json:"image"`
}

// ImageDeletedData announces a deleted image.
type ImageDeletedData struct {
	ID string `json:"id"`
}

// NewImageGeneratedMessage builds an image.generated event.
func NewImageGeneratedMessage(requestID string, img imagegen.GeneratedImage) WSMessage {
	return NewWSMessage(EventImageGenerated, ImageGeneratedData{
		RequestID:    requestID,
		ThumbnailURL: imagegen.ThumbnailURL(img.ID),
		Image:        img,
	})
}

// NewImageDeletedMessage builds an image.deleted event.
func NewImageDeletedMessage(id string) WSMessage {
	return NewWSMessage(EventImageDeleted, ImageDeletedData{ID: id})
}
