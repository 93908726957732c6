package models

import (
	"fmt"
	"time"
)

// Video is the metadata record for one uploaded video.
// VideoURL holds the storage provider's file id, not a URL.
type Video struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	ThumbnailURL string    `json:"thumbnailUrl" bson:"thumbnailUrl"`
	VideoURL     string    `json:"videoUrl" bson:"videoUrl"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UserID       string    `json:"userId" bson:"userId"`
}

// IsPending reports whether the store has not yet assigned a timestamp.
func (v *Video) IsPending() bool { return v.CreatedAt.IsZero() }

func (v *Video) OwnedBy(userID string) bool {
	return userID != "" && v.UserID == userID
}

// VideoUpdate carries the mutable fields of a record.
type VideoUpdate struct {
	Name *string `json:"name,omitempty" bson:"name,omitempty"`
}

// FileDetails is the provider-side metadata of a stored video.
type FileDetails struct {
	Size      int64     `json:"size"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdTime"`
}

// ShareURL builds the public playback page address for a record id.
func ShareURL(baseURL, id string) string {
	return fmt.Sprintf("%s/video/%s", baseURL, id)
}
