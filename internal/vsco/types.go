package vsco

// Image is a published photo as served to the site.
type Image struct {
	PhotoURL string `json:"photo_url"`

	// Date is the capture time, or the upload time when the photo carries no
	// capture time, in Unix milliseconds.
	Date int64 `json:"date"`
}

// sitesResponse is the JSON response for 2.0/sites.
type sitesResponse struct {
	Sites []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"sites"`
}

// mediaResponse is one page of 3.0/medias/profile.
type mediaResponse struct {
	Media          []mediaItem `json:"media"`
	PreviousCursor string      `json:"previous_cursor"`
}

type mediaItem struct {
	Type  string      `json:"type"`
	Image *mediaImage `json:"image"`
}

type mediaImage struct {
	ResponsiveURL string `json:"responsive_url"`
	CaptureDate   *int64 `json:"capture_date"`
	UploadDate    int64  `json:"upload_date"`
	IsVideo       bool   `json:"is_video"`
}

// isPhoto reports whether the item is a still image.
func (m mediaItem) isPhoto() bool {
	return m.Type == "image" && m.Image != nil && !m.Image.IsVideo && m.Image.ResponsiveURL != ""
}

func (m mediaImage) date() int64 {
	if m.CaptureDate != nil {
		return *m.CaptureDate
	}
	return m.UploadDate
}
