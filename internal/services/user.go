package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/feedgraph/apiserver/internal/auth"
	"github.com/feedgraph/apiserver/internal/store"
	"github.com/feedgraph/apiserver/internal/validation"
	"github.com/feedgraph/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost used for stored password hashes.
const PasswordCost = 12

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateStatus(ctx context.Context, id, status string) (types.User, error)
	AddPost(ctx context.Context, userID, postID primitive.ObjectID) error
	RemovePost(ctx context.Context, userID, postID primitive.ObjectID) error
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// AuthData is returned by a successful login.
type AuthData struct {
	Token  string
	UserID string
}

// UserService encapsulates registration, login and profile use-cases.
type UserService struct {
	repo     UserRepository
	tokens   TokenIssuer
	hashCost int
}

func NewUserService(repo UserRepository, tokens TokenIssuer) *UserService {
	return &UserService{repo: repo, tokens: tokens, hashCost: PasswordCost}
}

// Register creates a user after validating input and checking that the
// email is unused.
func (s *UserService) Register(ctx context.Context, input types.UserInput) (types.User, error) {
	if violations := validation.User(input); len(violations) > 0 {
		return types.User{}, InvalidInput(violations)
	}

	_, err := s.repo.GetByEmail(ctx, input.Email)
	if err == nil {
		return types.User{}, ErrUserExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:    input.Email,
		Password: string(hash),
		Name:     input.Name,
		Status:   types.DefaultUserStatus,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return types.User{}, ErrUserExists
	}
	return user, err
}

// Login checks credentials and issues a token. Unknown emails and wrong
// passwords produce the same error.
func (s *UserService) Login(ctx context.Context, email, password string) (AuthData, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthData{}, ErrInvalidCredentials
		}
		return AuthData{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return AuthData{}, ErrInvalidCredentials
	}

	userID := user.ID.Hex()
	token, err := s.tokens.Issue(userID, user.Email)
	if err != nil {
		return AuthData{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthData{Token: token, UserID: userID}, nil
}

// Current returns the authenticated user.
func (s *UserService) Current(ctx context.Context, verdict auth.Verdict) (types.User, error) {
	if err := requireAuth(verdict); err != nil {
		return types.User{}, err
	}
	user, err := s.repo.GetByID(ctx, verdict.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) UpdateStatus(ctx context.Context, verdict auth.Verdict, status string) (types.User, error) {
	if err := requireAuth(verdict); err != nil {
		return types.User{}, err
	}
	user, err := s.repo.UpdateStatus(ctx, verdict.UserID, status)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	return user, err
}

func requireAuth(verdict auth.Verdict) error {
	if !verdict.Authenticated {
		return ErrNotAuthenticated
	}
	return nil
}
