package models

// ImageAsset is an uploaded image file with its derived clean name.
type ImageAsset struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	CleanName   string `json:"clean_name"`
	PreviewURI  string `json:"preview_uri,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Secondary   bool   `json:"secondary"`
	Data        []byte `json:"-"`
}

// ImageGroup is a primary image plus the secondary shots sharing its clean name.
type ImageGroup struct {
	Primary     ImageAsset   `json:"primary"`
	Secondaries []ImageAsset `json:"secondaries,omitempty"`
}

// SecondaryIDs lists the IDs of the group's secondary images.
func (g ImageGroup) SecondaryIDs() []string {
	ids := make([]string, 0, len(g.Secondaries))
	for _, s := range g.Secondaries {
		ids = append(ids, s.ID)
	}
	return ids
}
