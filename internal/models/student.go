package models

import "time"

// UnknownName is used when a payload carries an ID but no name.
const UnknownName = "Unknown"

// StudentIdentity is the identity resolved from a single scan.
type StudentIdentity struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Section         string `json:"section"`
	NeedsManualInfo bool   `json:"needsManualInfo,omitempty"`
}

// RegisteredEntry is a student known to the registry.
type RegisteredEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Section      string    `json:"section"`
	RawPayload   string    `json:"rawData"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Identity returns the entry as a scan identity.
func (e RegisteredEntry) Identity() StudentIdentity {
	return StudentIdentity{ID: e.ID, Name: e.Name, Section: e.Section}
}

// AttendanceEntry is one recorded attendance in a ledger bucket.
type AttendanceEntry struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Section     string `json:"section"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Timestamp   int64  `json:"timestamp"`
}

// CanonicalPayload is the id:name:section form printed into generated QR
// codes and matched verbatim against raw scans.
func CanonicalPayload(id, name, section string) string {
	return id + ":" + name + ":" + section
}
