package model

// ScanType is the direction of a QR scan.
type ScanType string

const (
	ScanEntry ScanType = "ENTRY"
	ScanExit  ScanType = "EXIT"
)

// Valid reports whether t is ENTRY or EXIT.
func (t ScanType) Valid() bool {
	return t == ScanEntry || t == ScanExit
}

// ScanEvent is the payload pushed on /topic/scans.
type ScanEvent struct {
	AreaID   int64    `json:"areaId"`
	ScanType ScanType `json:"scanType"`
	NewCount int      `json:"newCount"`
}

// ScanRequest is the body of POST /api/scans.
type ScanRequest struct {
	AreaID   int64    `json:"areaId"`
	ScanType ScanType `json:"scanType"`
}

// ScanResponse is a processed scan as returned by the scans endpoints.
type ScanResponse struct {
	ID        int64     `json:"id"`
	AreaID    int64     `json:"areaId"`
	AreaName  string    `json:"areaName"`
	ScanType  ScanType  `json:"scanType"`
	Timestamp LocalTime `json:"timestamp"`
	NewCount  int       `json:"newCount"`
}

// HourlyTrend is one bucket of GET /api/scans/area/{id}/trend. Count is the
// net flow for the hour (entries minus exits).
type HourlyTrend struct {
	Hour    string `json:"hour"`
	Entries int    `json:"entries"`
	Exits   int    `json:"exits"`
	Count   int    `json:"count"`
}
