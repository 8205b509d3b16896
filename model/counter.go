package model

// Counter is a singleton-per-name sequence document. The sequence is only
// ever advanced through a single atomic UPSERT, never read-modify-written
// by application code.
type Counter struct {
	Key      string `json:"_key,omitempty"`
	Name     string `json:"name"`
	Sequence int64  `json:"sequence"`
}

// UsernameCounter is the counter document backing default username
// generation.
const UsernameCounter = "username_sequence"
