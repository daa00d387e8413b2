package model

// SharedPhoto is one entry in the session photo log: a single captured,
// filtered, encoded photograph broadcast by its origin participant.
type SharedPhoto struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	PhotoData []byte `json:"photoData"`
	Timestamp int64  `json:"timestamp"`
	Filter    string `json:"filter"`
}

// StripArtifact is the session's single shared composite image. The slot is
// overwritten by whichever client assembles last; last writer wins.
type StripArtifact struct {
	StripData     []byte   `json:"stripData"`
	CreatedBy     string   `json:"createdBy"`
	CreatedByName string   `json:"createdByName"`
	Timestamp     int64    `json:"timestamp"`
	Participants  []string `json:"participants"`
}
