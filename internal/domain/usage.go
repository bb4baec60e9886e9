package domain

import "time"

type UsageLog struct {
	UserID          string
	JobID           string
	Operation       string
	PixelsProcessed int64
	BytesIn         int64
	BytesOut        int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}

// BytesSaved is negative when the output grew.
func (u UsageLog) BytesSaved() int64 {
	return u.BytesIn - u.BytesOut
}
