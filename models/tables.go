package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:120;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:256;not null" json:"-"`
	IsAdmin      bool      `gorm:"default:false" json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

type Post struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string    `gorm:"size:120;not null" json:"title"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Summary      string    `gorm:"size:200" json:"summary"`
	FeatureImage string    `gorm:"size:256" json:"feature_image"` // URL, stored as typed
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`

	// Filled by store.LoadRelations, never persisted.
	Author     User       `gorm:"-" json:"-"`
	Categories []Category `gorm:"-" json:"-"`
}

type Category struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Description string `gorm:"size:200" json:"description"`
}

// PostCategory is the pure link table between posts and categories.
type PostCategory struct {
	PostID     uint `gorm:"primaryKey;autoIncrement:false"`
	CategoryID uint `gorm:"primaryKey;autoIncrement:false;index"`
}

func (PostCategory) TableName() string {
	return "post_categories"
}

// HasCategory reports whether the loaded category set contains id.
func (p Post) HasCategory(id uint) bool {
	for _, c := range p.Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
