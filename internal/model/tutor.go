package model

import "time"

// TimestampLayout is the ISO-8601 layout used for registry timestamps.
const TimestampLayout = time.RFC3339

// TutorConfig is a registry entry mapping an external identity to the
// tutor's workspace.
type TutorConfig struct {
	ExternalID   string `json:"external_id"`
	DisplayName  string `json:"display_name"`
	WorkspaceRef string `json:"workspace_ref"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Timestamp formats t for storage in a TutorConfig or Events row.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// FormatLocal renders an ISO-8601 timestamp as "02.01.2006 15:04". Values that
// do not parse are truncated to their first ten characters.
func FormatLocal(ts string) string {
	t, err := time.Parse(TimestampLayout, ts)
	if err != nil {
		if len(ts) > 10 {
			return ts[:10]
		}
		return ts
	}
	return t.Format("02.01.2006 15:04")
}
