package models

// PersonSummary describes one enrolled person of the gallery.
type PersonSummary struct {
	Name        string `json:"name"`
	SampleCount int    `json:"sample_count"`
}

// FaceSampleInfo describes a stored sample without its pixels.
type FaceSampleInfo struct {
	Person string `json:"person"`
	Seq    int    `json:"seq"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
