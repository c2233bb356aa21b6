package reviewloader

import (
	"fmt"
)

// Event is a Cloud Storage object event, or any bucket/object pair.
type Event struct {
	Name   string `json:"name"`
	Bucket string `json:"bucket"`
}

// FullPath returns full path of storage object beginning with gs://.
func (e *Event) FullPath() string {
	return fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
}
