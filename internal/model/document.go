package model

// Document is an uploaded file whose chunks live in the vector index under
// Namespace.
type Document struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Filename   string `json:"filename"`
	FileKey    string `json:"file_key"`
	Namespace  string `json:"namespace"`
	ChunkCount int    `json:"chunk_count"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}
