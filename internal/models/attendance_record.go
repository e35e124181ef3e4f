package models

import "time"

// AttendanceRecord captures a single student submission against a course.
// Records are immutable once created and cascade-delete with their course.
type AttendanceRecord struct {
	BaseModel

	CourseID string  `gorm:"type:uuid;not null;index" json:"course_id"`
	Course   *Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`

	StudentName    string    `gorm:"size:100;not null" json:"student_name"`
	StudentAdminNo string    `gorm:"size:20;not null" json:"student_admin_no"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`
}
