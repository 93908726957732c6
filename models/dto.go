package models

import "time"

// VideoResponse represents a record in API responses
type VideoResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	ThumbnailURL string     `json:"thumbnailUrl"`
	VideoURL     string     `json:"videoUrl"`
	CreatedAt    *time.Time `json:"createdAt"`
	UserID       string     `json:"userId"`
	ShareURL     string     `json:"shareUrl"`
}

// NewVideoResponse creates a response from a video model
func NewVideoResponse(v *Video, baseURL string) *VideoResponse {
	resp := &VideoResponse{
		ID:           v.ID,
		Name:         v.Name,
		ThumbnailURL: v.ThumbnailURL,
		VideoURL:     v.VideoURL,
		UserID:       v.UserID,
		ShareURL:     ShareURL(baseURL, v.ID),
	}
	if !v.IsPending() {
		createdAt := v.CreatedAt
		resp.CreatedAt = &createdAt
	}
	return resp
}

func NewVideoResponses(videos []*Video, baseURL string) []*VideoResponse {
	out := make([]*VideoResponse, 0, len(videos))
	for _, v := range videos {
		out = append(out, NewVideoResponse(v, baseURL))
	}
	return out
}

// VideoDetailsResponse joins a record with its provider-side metadata.
type VideoDetailsResponse struct {
	*VideoResponse
	Details FileDetails `json:"details"`
}

// RenameRequest is the body of PATCH /api/v1/videos/{id}
type RenameRequest struct {
	Name string `json:"name" validate:"required,max=512"`
}

// DriveUploadRequest is the server-side upload entry point payload.
type DriveUploadRequest struct {
	FileDataURI string `json:"fileDataUri" validate:"required"`
	FileName    string `json:"fileName" validate:"required,max=512"`
	MimeType    string `json:"mimeType" validate:"required"`
	AccessToken string `json:"accessToken" validate:"required"`
}

type DriveUploadResponse struct {
	FileID string `json:"fileId"`
}

// UserResponse describes the signed-in user.
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}
