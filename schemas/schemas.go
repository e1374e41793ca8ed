// Package schemas embeds the JSON Schemas for the wire formats exchanged with
// the automation system and the grading UI.
package schemas

import "embed"

// Schema file names.
const (
	Callback       = "callback.schema.json"
	ConfirmGrading = "confirm_grading.schema.json"
	Notification   = "notification.schema.json"
)

//go:embed *.schema.json
var FS embed.FS

// Read returns the raw content of the named schema.
func Read(name string) ([]byte, error) {
	return FS.ReadFile(name)
}
