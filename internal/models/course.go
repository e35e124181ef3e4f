package models

import (
	"gorm.io/datatypes"
)

// Weekday values accepted for Course.Day.
var CourseDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Course describes a scheduled class owned by a single lecturer.
// Start and end times are wall-clock values in HH:MM form.
type Course struct {
	BaseModel

	LecturerID string    `gorm:"type:uuid;not null;index" json:"lecturer_id"`
	Lecturer   *Lecturer `gorm:"foreignKey:LecturerID" json:"-"`

	Title     string `gorm:"size:200;not null" json:"title"`
	Day       string `gorm:"size:20;not null" json:"day"`
	StartTime string `gorm:"size:5;not null" json:"start_time"`
	EndTime   string `gorm:"size:5;not null" json:"end_time"`

	// QRCodeURL points at the most recently generated QR image; QRCodeMeta
	// records the payload and issuance timestamp it encodes.
	QRCodeURL  string         `json:"qr_code_url"`
	QRCodeMeta datatypes.JSON `json:"qr_code_meta,omitempty"`

	Attendances []AttendanceRecord `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}
