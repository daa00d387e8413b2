package model

// GalleryItem is one persisted capture in the personal gallery.
type GalleryItem struct {
	ID          string `json:"id" bson:"_id,omitempty"`
	UserID      string `json:"userId" bson:"userId"`
	UserName    string `json:"userName" bson:"userName"`
	Photo       []byte `json:"photo" bson:"photo"`
	Filter      string `json:"filter" bson:"filter"`
	SessionCode string `json:"sessionCode,omitempty" bson:"sessionCode,omitempty"`
	TakenAt     int64  `json:"takenAt" bson:"takenAt"`
}
