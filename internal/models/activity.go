package models

const (
	VerbGet = "get"
	VerbPut = "put"
)

type Parameter struct {
	Description string `json:"description,omitempty"`
	LocalName   string `json:"localName,omitempty"`
	OnDemand    bool   `json:"ondemand"`
	Required    bool   `json:"required"`
	Verb        string `json:"verb"`
	Zip         bool   `json:"zip"`
}

type Setting struct {
	Value string `json:"value"`
}

type Activity struct {
	ID          string               `json:"id"`
	Engine      string               `json:"engine"`
	CommandLine []string             `json:"commandLine"`
	AppBundles  []string             `json:"appbundles"`
	Parameters  map[string]Parameter `json:"parameters"`
	Settings    map[string]Setting   `json:"settings,omitempty"`
	Description string               `json:"description,omitempty"`
	Version     int                  `json:"version,omitempty"`
}
