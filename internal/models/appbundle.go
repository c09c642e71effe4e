package models

// Page is one page of a platform id listing.
type Page struct {
	PaginationToken string   `json:"paginationToken,omitempty"`
	Data            []string `json:"data"`
}

// UploadParameters describe the pre-signed form upload returned when an app
// bundle or a new bundle version is created.
type UploadParameters struct {
	EndpointURL string            `json:"endpointURL"`
	FormData    map[string]string `json:"formData"`
}

type AppBundle struct {
	ID               string            `json:"id,omitempty"`
	Engine           string            `json:"engine"`
	Description      string            `json:"description,omitempty"`
	Package          string            `json:"package,omitempty"`
	Version          int               `json:"version,omitempty"`
	UploadParameters *UploadParameters `json:"uploadParameters,omitempty"`
}

// Alias is a movable pointer to one version of an app bundle or activity.
type Alias struct {
	ID      string `json:"id,omitempty"`
	Version int    `json:"version"`
}
