package services

import (
	"context"
	"errors"

	"github.com/feedgraph/apiserver/internal/auth"
	"github.com/feedgraph/apiserver/internal/store"
	"github.com/feedgraph/apiserver/internal/validation"
	"github.com/feedgraph/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PageSize is the number of posts on each listing page.
const PageSize = 2

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Get(ctx context.Context, id string) (types.Post, error)
	List(ctx context.Context, offset, limit int) ([]types.Post, int, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.Post, error)
	Update(ctx context.Context, post types.Post) (types.Post, error)
	Delete(ctx context.Context, id string) error
}

// ImageCleaner schedules removal of a stored image without waiting for it.
type ImageCleaner interface {
	Remove(ctx context.Context, path string)
}

// PostService encapsulates post use-cases. It keeps Post.creator and the
// creator's post list in step.
type PostService struct {
	posts  PostRepository
	users  UserRepository
	images ImageCleaner
}

func NewPostService(posts PostRepository, users UserRepository, images ImageCleaner) *PostService {
	return &PostService{posts: posts, users: users, images: images}
}

func (s *PostService) Create(ctx context.Context, verdict auth.Verdict, input types.PostInput) (types.Post, error) {
	if err := requireAuth(verdict); err != nil {
		return types.Post{}, err
	}
	if violations := validation.Post(input); len(violations) > 0 {
		return types.Post{}, InvalidInput(violations)
	}

	creator, err := s.users.GetByID(ctx, verdict.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Post{}, ErrInvalidUser
		}
		return types.Post{}, err
	}

	post, err := s.posts.Create(ctx, types.Post{
		Title:     input.Title,
		Content:   input.Content,
		ImageURL:  input.ImageURL,
		CreatorID: creator.ID,
	})
	if err != nil {
		return types.Post{}, err
	}

	// Not atomic with the insert above.
	if err := s.users.AddPost(ctx, creator.ID, post.ID); err != nil {
		return types.Post{}, err
	}
	creator.Posts = append(creator.Posts, post.ID)
	post.Creator = &creator
	return post, nil
}

// List returns the requested page, newest first. Pages below 1 are treated
// as the first page.
func (s *PostService) List(ctx context.Context, verdict auth.Verdict, page int) (types.PostPage, error) {
	if err := requireAuth(verdict); err != nil {
		return types.PostPage{}, err
	}
	if page < 1 {
		page = 1
	}

	posts, total, err := s.posts.List(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return types.PostPage{}, err
	}
	return types.PostPage{Posts: posts, TotalPosts: total}, nil
}

func (s *PostService) Get(ctx context.Context, verdict auth.Verdict, id string) (types.Post, error) {
	if err := requireAuth(verdict); err != nil {
		return types.Post{}, err
	}
	return s.load(ctx, id)
}

// Update replaces title and content, and the image path unless it is
// types.UnchangedImageURL. Only the creator may update a post.
func (s *PostService) Update(ctx context.Context, verdict auth.Verdict, id string, input types.PostInput) (types.Post, error) {
	if err := requireAuth(verdict); err != nil {
		return types.Post{}, err
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return types.Post{}, err
	}
	if post.CreatorID.Hex() != verdict.UserID {
		return types.Post{}, ErrNotAuthorized
	}
	if violations := validation.Post(input); len(violations) > 0 {
		return types.Post{}, InvalidInput(violations)
	}

	post.Title = input.Title
	post.Content = input.Content
	if input.ImageURL != types.UnchangedImageURL {
		post.ImageURL = input.ImageURL
	}

	updated, err := s.posts.Update(ctx, post)
	if errors.Is(err, store.ErrNotFound) {
		return types.Post{}, ErrPostNotFound
	}
	return updated, err
}

// Delete removes a post owned by the caller, schedules removal of its image
// and drops it from the creator's post list.
func (s *PostService) Delete(ctx context.Context, verdict auth.Verdict, id string) error {
	if err := requireAuth(verdict); err != nil {
		return err
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if post.CreatorID.Hex() != verdict.UserID {
		return ErrNotAuthorized
	}

	s.images.Remove(ctx, post.ImageURL)

	if err := s.posts.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPostNotFound
		}
		return err
	}

	// A creator that vanished has no post list left to fix.
	if err := s.users.RemovePost(ctx, post.CreatorID, post.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// ByIDs loads the posts referenced by a user's post list, in list order.
func (s *PostService) ByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.Post, error) {
	return s.posts.ListByIDs(ctx, ids)
}

func (s *PostService) load(ctx context.Context, id string) (types.Post, error) {
	post, err := s.posts.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Post{}, ErrPostNotFound
	}
	return post, err
}
