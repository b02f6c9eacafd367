package model

// Channel identifies the uploader of a video
type Channel struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	URL            string `json:"url,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	Verified       bool   `json:"verified"`
}

// Thumbnail is one preview image of a video
type Thumbnail struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MetadataRecord is a snapshot of a video's metadata and formats, held for
// the duration of one job or query.
type MetadataRecord struct {
	VideoID         string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	DurationSeconds float64     `json:"duration"`
	ViewCount       int64       `json:"view_count"`
	LikeCount       int64       `json:"like_count"`
	UploadDate      string      `json:"upload_date"`
	Channel         Channel     `json:"channel"`
	Thumbnails      []Thumbnail `json:"thumbnails"`
	Formats         []Format    `json:"-"`
}

// FindFormat returns the first format with the given id.
func (m *MetadataRecord) FindFormat(id string) (Format, bool) {
	for _, f := range m.Formats {
		if f.ID == id {
			return f, true
		}
	}
	return Format{}, false
}
