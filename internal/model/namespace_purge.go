package model

// NamespacePurge is a vector index namespace still waiting to be deleted.
type NamespacePurge struct {
	Namespace string `json:"namespace"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
	Ctime     int64  `json:"ctime"`
	Mtime     int64  `json:"mtime"`
}
