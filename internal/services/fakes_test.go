package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/feedgraph/apiserver/internal/store"
	"github.com/feedgraph/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeUsers struct {
	mu    sync.Mutex
	byID  map[primitive.ObjectID]types.User
	calls int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[primitive.ObjectID]types.User{}}
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (types.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.User{}, store.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[oid]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, u := range f.byID {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	if user.Posts == nil {
		user.Posts = []primitive.ObjectID{}
	}
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) UpdateStatus(ctx context.Context, id, status string) (types.User, error) {
	user, err := f.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Status = status
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) AddPost(ctx context.Context, userID, postID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.Posts = append(user.Posts, postID)
	f.byID[userID] = user
	return nil
}

func (f *fakeUsers) RemovePost(ctx context.Context, userID, postID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return store.ErrNotFound
	}
	kept := user.Posts[:0]
	for _, id := range user.Posts {
		if id != postID {
			kept = append(kept, id)
		}
	}
	user.Posts = kept
	f.byID[userID] = user
	return nil
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *fakeUsers) get(id primitive.ObjectID) types.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

type fakePosts struct {
	mu    sync.Mutex
	users *fakeUsers
	byID  map[primitive.ObjectID]types.Post
	clock time.Time
}

func newFakePosts(users *fakeUsers) *fakePosts {
	return &fakePosts{
		users: users,
		byID:  map[primitive.ObjectID]types.Post{},
		clock: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakePosts) Create(ctx context.Context, post types.Post) (types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Minute)
	post.ID = primitive.NewObjectID()
	post.CreatedAt = f.clock
	post.UpdatedAt = f.clock
	f.byID[post.ID] = post
	return post, nil
}

func (f *fakePosts) Get(ctx context.Context, id string) (types.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Post{}, store.ErrNotFound
	}
	f.mu.Lock()
	post, ok := f.byID[oid]
	f.mu.Unlock()
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	return f.populate(post), nil
}

func (f *fakePosts) List(ctx context.Context, offset, limit int) ([]types.Post, int, error) {
	f.mu.Lock()
	all := make([]types.Post, 0, len(f.byID))
	for _, p := range f.byID {
		all = append(all, p)
	}
	f.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]types.Post, 0, end-offset)
	for _, p := range all[offset:end] {
		page = append(page, f.populate(p))
	}
	return page, total, nil
}

func (f *fakePosts) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	posts := []types.Post{}
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (f *fakePosts) Update(ctx context.Context, post types.Post) (types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[post.ID]; !ok {
		return types.Post{}, store.ErrNotFound
	}
	f.clock = f.clock.Add(time.Second)
	post.UpdatedAt = f.clock
	stored := post
	stored.Creator = nil
	f.byID[post.ID] = stored
	return post, nil
}

func (f *fakePosts) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[oid]; !ok {
		return store.ErrNotFound
	}
	delete(f.byID, oid)
	return nil
}

func (f *fakePosts) exists(id primitive.ObjectID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byID[id]
	return ok
}

func (f *fakePosts) populate(post types.Post) types.Post {
	if creator, err := f.users.GetByID(context.Background(), post.CreatorID.Hex()); err == nil {
		post.Creator = &creator
	}
	return post
}

type recordingCleaner struct {
	mu    sync.Mutex
	paths []string
}

func (c *recordingCleaner) Remove(ctx context.Context, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}
