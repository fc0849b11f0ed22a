// Package graphql serves the feed API over GraphQL.
package graphql

import (
	"context"
	"time"

	"github.com/feedgraph/apiserver/internal/auth"
	"github.com/feedgraph/apiserver/internal/services"
	"github.com/feedgraph/apiserver/types"
	graphqlgo "github.com/graph-gophers/graphql-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// UserService is the user behavior the resolvers expose.
type UserService interface {
	Register(ctx context.Context, input types.UserInput) (types.User, error)
	Login(ctx context.Context, email, password string) (services.AuthData, error)
	Current(ctx context.Context, verdict auth.Verdict) (types.User, error)
	UpdateStatus(ctx context.Context, verdict auth.Verdict, status string) (types.User, error)
}

// PostService is the post behavior the resolvers expose.
type PostService interface {
	Create(ctx context.Context, verdict auth.Verdict, input types.PostInput) (types.Post, error)
	List(ctx context.Context, verdict auth.Verdict, page int) (types.PostPage, error)
	Get(ctx context.Context, verdict auth.Verdict, id string) (types.Post, error)
	Update(ctx context.Context, verdict auth.Verdict, id string, input types.PostInput) (types.Post, error)
	Delete(ctx context.Context, verdict auth.Verdict, id string) error
	ByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.Post, error)
}

// Resolver is the root resolver for both RootQuery and RootMutation.
type Resolver struct {
	users UserService
	posts PostService
}

func NewResolver(users UserService, posts PostService) *Resolver {
	return &Resolver{users: users, posts: posts}
}

type userInputData struct {
	Email    string
	Name     string
	Password string
}

type postInputData struct {
	Title    string
	Content  string
	ImageURL string
}

func (in postInputData) toInput() types.PostInput {
	return types.PostInput{Title: in.Title, Content: in.Content, ImageURL: in.ImageURL}
}

func (r *Resolver) Login(ctx context.Context, args struct {
	Email    string
	Password string
}) (*authDataResolver, error) {
	data, err := r.users.Login(ctx, args.Email, args.Password)
	if err != nil {
		return nil, err
	}
	return &authDataResolver{data: data}, nil
}

func (r *Resolver) Posts(ctx context.Context, args struct{ PageNo *int32 }) (*postDataResolver, error) {
	page := 1
	if args.PageNo != nil {
		page = int(*args.PageNo)
	}
	result, err := r.posts.List(ctx, auth.VerdictFromContext(ctx), page)
	if err != nil {
		return nil, err
	}
	return &postDataResolver{root: r, page: result}, nil
}

func (r *Resolver) Post(ctx context.Context, args struct{ ID graphqlgo.ID }) (*postResolver, error) {
	post, err := r.posts.Get(ctx, auth.VerdictFromContext(ctx), string(args.ID))
	if err != nil {
		return nil, err
	}
	return r.post(post), nil
}

func (r *Resolver) User(ctx context.Context) (*userResolver, error) {
	user, err := r.users.Current(ctx, auth.VerdictFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return r.user(user), nil
}

func (r *Resolver) CreateUser(ctx context.Context, args struct{ UserInput userInputData }) (*userResolver, error) {
	user, err := r.users.Register(ctx, types.UserInput{
		Email:    args.UserInput.Email,
		Name:     args.UserInput.Name,
		Password: args.UserInput.Password,
	})
	if err != nil {
		return nil, err
	}
	return r.user(user), nil
}

func (r *Resolver) CreatePost(ctx context.Context, args struct{ PostInput postInputData }) (*postResolver, error) {
	post, err := r.posts.Create(ctx, auth.VerdictFromContext(ctx), args.PostInput.toInput())
	if err != nil {
		return nil, err
	}
	return r.post(post), nil
}

func (r *Resolver) UpdatePost(ctx context.Context, args struct {
	ID        graphqlgo.ID
	PostInput postInputData
}) (*postResolver, error) {
	post, err := r.posts.Update(ctx, auth.VerdictFromContext(ctx), string(args.ID), args.PostInput.toInput())
	if err != nil {
		return nil, err
	}
	return r.post(post), nil
}

func (r *Resolver) DeletePost(ctx context.Context, args struct{ ID graphqlgo.ID }) (bool, error) {
	if err := r.posts.Delete(ctx, auth.VerdictFromContext(ctx), string(args.ID)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resolver) UpdateStatus(ctx context.Context, args struct{ Status string }) (*userResolver, error) {
	user, err := r.users.UpdateStatus(ctx, auth.VerdictFromContext(ctx), args.Status)
	if err != nil {
		return nil, err
	}
	return r.user(user), nil
}

func (r *Resolver) post(post types.Post) *postResolver {
	return &postResolver{root: r, post: post}
}

func (r *Resolver) postList(posts []types.Post) []*postResolver {
	out := make([]*postResolver, 0, len(posts))
	for _, post := range posts {
		out = append(out, r.post(post))
	}
	return out
}

func (r *Resolver) user(user types.User) *userResolver {
	return &userResolver{root: r, user: user}
}

type postResolver struct {
	root *Resolver
	post types.Post
}

func (p *postResolver) ID() graphqlgo.ID  { return graphqlgo.ID(p.post.ID.Hex()) }
func (p *postResolver) Title() string     { return p.post.Title }
func (p *postResolver) Content() string   { return p.post.Content }
func (p *postResolver) ImageURL() string  { return p.post.ImageURL }
func (p *postResolver) CreatedAt() string { return formatTime(p.post.CreatedAt) }
func (p *postResolver) UpdatedAt() string { return formatTime(p.post.UpdatedAt) }

// Creator falls back to the bare reference when the creator was not
// populated.
func (p *postResolver) Creator() *userResolver {
	if p.post.Creator != nil {
		return p.root.user(*p.post.Creator)
	}
	return p.root.user(types.User{ID: p.post.CreatorID})
}

type userResolver struct {
	root *Resolver
	user types.User
}

func (u *userResolver) ID() graphqlgo.ID { return graphqlgo.ID(u.user.ID.Hex()) }
func (u *userResolver) Name() string     { return u.user.Name }
func (u *userResolver) Email() string    { return u.user.Email }
func (u *userResolver) Status() string   { return u.user.Status }

func (u *userResolver) Posts(ctx context.Context) ([]*postResolver, error) {
	posts, err := u.root.posts.ByIDs(ctx, u.user.Posts)
	if err != nil {
		return nil, err
	}
	return u.root.postList(posts), nil
}

type authDataResolver struct {
	data services.AuthData
}

func (a *authDataResolver) Token() string  { return a.data.Token }
func (a *authDataResolver) UserID() string { return a.data.UserID }

type postDataResolver struct {
	root *Resolver
	page types.PostPage
}

func (p *postDataResolver) Posts() []*postResolver { return p.root.postList(p.page.Posts) }
func (p *postDataResolver) TotalPosts() int32      { return int32(p.page.TotalPosts) }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
