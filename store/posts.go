package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"inkwell/models"
)

// PostInput carries every editable post field. CategoryIDs is the complete
// category set; ids that do not resolve to a category are ignored.
type PostInput struct {
	Title        string `json:"title" validate:"notblank,max=120"`
	Content      string `json:"content" validate:"notblank"`
	Summary      string `json:"summary" validate:"max=200"`
	FeatureImage string `json:"feature_image" validate:"max=256"`
	CategoryIDs  []uint `json:"-" validate:"-"`
}

func (in *PostInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	in.FeatureImage = strings.TrimSpace(in.FeatureImage)
}

func (s *Store) CreatePost(ctx context.Context, ownerID uint, in PostInput) (*models.Post, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	now := s.now()
	post := models.Post{
		Title:        in.Title,
		Content:      in.Content,
		Summary:      in.Summary,
		FeatureImage: in.FeatureImage,
		CreatedAt:    now,
		UpdatedAt:    now,
		UserID:       ownerID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if err := tx.Select("id").First(&owner, ownerID).Error; err != nil {
			return lookupErr(err, "user", ownerID)
		}
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		return replaceCategories(tx, post.ID, in.CategoryIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.GetPost(ctx, post.ID)
}

// GetPost returns the post with its author and categories loaded.
func (s *Store) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, lookupErr(err, "post", id)
	}

	posts := []models.Post{post}
	if err := s.LoadRelations(ctx, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// UpdatePost overwrites all editable fields and the category set. The
// owner never changes and UpdatedAt always moves forward.
func (s *Store) UpdatePost(ctx context.Context, id uint, in PostInput) (*models.Post, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, id).Error; err != nil {
			return lookupErr(err, "post", id)
		}

		updated := s.now()
		if !updated.After(post.UpdatedAt) {
			updated = post.UpdatedAt.Add(time.Microsecond)
		}

		err := tx.Model(&post).Updates(map[string]any{
			"title":         in.Title,
			"content":       in.Content,
			"summary":       in.Summary,
			"feature_image": in.FeatureImage,
			"updated_at":    updated,
		}).Error
		if err != nil {
			return err
		}
		return replaceCategories(tx, post.ID, in.CategoryIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.GetPost(ctx, id)
}

func (s *Store) DeletePost(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.PostCategory{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Post{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return notFound("post", id)
		}
		return nil
	})
}

// AllPosts lists every post newest first, relations loaded.
func (s *Store) AllPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&posts).Error; err != nil {
		return nil, err
	}
	if err := s.LoadRelations(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// replaceCategories swaps the post's whole category set for ids, dropping
// ids with no matching category.
func replaceCategories(tx *gorm.DB, postID uint, ids []uint) error {
	if err := tx.Where("post_id = ?", postID).Delete(&models.PostCategory{}).Error; err != nil {
		return err
	}

	wanted := make([]uint, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		wanted = append(wanted, id)
	}
	if len(wanted) == 0 {
		return nil
	}

	var existing []uint
	if err := tx.Model(&models.Category{}).Where("id IN ?", wanted).Order("id").Pluck("id", &existing).Error; err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	links := make([]models.PostCategory, 0, len(existing))
	for _, categoryID := range existing {
		links = append(links, models.PostCategory{PostID: postID, CategoryID: categoryID})
	}
	return tx.Create(&links).Error
}

type categoryLink struct {
	PostID      uint
	ID          uint
	Name        string
	Description string
}

// LoadRelations fills Author and Categories on every post with one query
// per relation, whatever the number of posts.
func (s *Store) LoadRelations(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	postIDs := make([]uint, 0, len(posts))
	userIDs := make([]uint, 0, len(posts))
	seenUser := make(map[uint]bool)
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		if !seenUser[p.UserID] {
			seenUser[p.UserID] = true
			userIDs = append(userIDs, p.UserID)
		}
	}

	db := s.db.WithContext(ctx)

	var users []models.User
	if err := db.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return err
	}
	authors := make(map[uint]models.User, len(users))
	for _, u := range users {
		authors[u.ID] = u
	}

	var links []categoryLink
	err := db.Table("categories").
		Select("post_categories.post_id AS post_id, categories.id AS id, categories.name AS name, categories.description AS description").
		Joins("INNER JOIN post_categories ON post_categories.category_id = categories.id").
		Where("post_categories.post_id IN ?", postIDs).
		Order("categories.name ASC").
		Scan(&links).Error
	if err != nil {
		return err
	}
	byPost := make(map[uint][]models.Category)
	for _, l := range links {
		byPost[l.PostID] = append(byPost[l.PostID], models.Category{ID: l.ID, Name: l.Name, Description: l.Description})
	}

	for i := range posts {
		posts[i].Author = authors[posts[i].UserID]
		posts[i].Categories = byPost[posts[i].ID]
		if posts[i].Categories == nil {
			posts[i].Categories = []models.Category{}
		}
	}
	return nil
}
