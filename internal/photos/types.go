package photos

import "encoding/json"

// Credential is an OAuth2 bearer access token. Uploader borrows it for one
// call and never stores it.
type Credential string

// UploadToken is the short-lived handle returned by the raw upload. It is only
// valid together with the credential that produced it.
type UploadToken string

// CreateOptions are optional batchCreate fields applied to every item.
type CreateOptions struct {
	Description string
	AlbumID     string
}

// MediaItemResult is the decoded batchCreate response. Raw keeps the exact
// response body for callers that want to print or store it verbatim.
type MediaItemResult struct {
	NewMediaItemResults []NewMediaItemResult `json:"newMediaItemResults"`
	Raw                 json.RawMessage      `json:"-"`
}

// NewMediaItemResult is the per-item outcome of batchCreate.
type NewMediaItemResult struct {
	UploadToken string     `json:"uploadToken"`
	Status      *APIError  `json:"status,omitempty"`
	MediaItem   *MediaItem `json:"mediaItem,omitempty"`
}

// MediaItem is the service-side record created from an upload token.
type MediaItem struct {
	ID            string         `json:"id"`
	Description   string         `json:"description,omitempty"`
	ProductURL    string         `json:"productUrl,omitempty"`
	MimeType      string         `json:"mimeType,omitempty"`
	Filename      string         `json:"filename,omitempty"`
	MediaMetadata *MediaMetadata `json:"mediaMetadata,omitempty"`
}

// MediaMetadata holds the fields Photos reports about the stored asset.
type MediaMetadata struct {
	CreationTime string `json:"creationTime,omitempty"`
	Width        string `json:"width,omitempty"`
	Height       string `json:"height,omitempty"`
}

// Item returns the first created media item, or nil.
func (r *MediaItemResult) Item() *MediaItem {
	for i := range r.NewMediaItemResults {
		if r.NewMediaItemResults[i].MediaItem != nil {
			return r.NewMediaItemResults[i].MediaItem
		}
	}

	return nil
}

// itemFailure returns the status of the first item the service rejected.
// Google uses code 0 (OK) or an absent code for success.
func (r *MediaItemResult) itemFailure() *APIError {
	for i := range r.NewMediaItemResults {
		if s := r.NewMediaItemResults[i].Status; s != nil && s.Code != 0 {
			return s
		}
	}

	return nil
}
