package model

type Course struct {
	BaseModel
	Name        string `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	CreatorID   *uint  `gorm:"index;type:bigint unsigned" json:"creatorId,omitempty"`
	Hidden      bool   `gorm:"default:false" json:"hidden"`
}

func (Course) TableName() string {
	return "courses"
}

type Tag struct {
	BaseModel
	CourseID uint   `gorm:"index;type:bigint unsigned" json:"courseId"`
	Name     string `gorm:"size:100;not null" json:"name"`
}

func (Tag) TableName() string {
	return "tags"
}

type User struct {
	BaseModel
	Name  string `gorm:"size:100" json:"name"`
	Email string `gorm:"size:255;uniqueIndex" json:"email"`
	Role  string `gorm:"size:20;default:'student'" json:"role"` // student, teacher
}

func (User) TableName() string {
	return "users"
}
