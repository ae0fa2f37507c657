package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"moradia/api/internal/apperr"
	"moradia/api/internal/config"
	"moradia/api/internal/ids"
	"moradia/api/internal/models"
	"moradia/api/internal/repository"
	"moradia/api/internal/security"
)

type UserRepo interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Update(ctx context.Context, user models.User) error
	ListStudents(ctx context.Context) ([]models.User, error)
}

// ListingFinder is the slice of listing access the identity side needs.
type ListingFinder interface {
	GetByID(ctx context.Context, id string) (models.Listing, error)
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^(\+55)?\s?\(?\d{2}\)?\s?\d{4,5}-?\d{4}$`)
)

type UserService struct {
	users     UserRepo
	favorites FavoriteStore
	listings  ListingFinder
	images    ImageStore
	cfg       config.SecurityConfig
	log       zerolog.Logger
}

func NewUserService(
	users UserRepo,
	favorites FavoriteStore,
	listings ListingFinder,
	images ImageStore,
	cfg config.SecurityConfig,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		favorites: favorites,
		listings:  listings,
		images:    images,
		cfg:       cfg,
		log:       log,
	}
}

type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     string
	Photo    *multipart.FileHeader
}

func (s *UserService) SignUp(ctx context.Context, input SignUpInput) (models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Role = strings.ToLower(input.Role)

	if input.Name == "" || input.Email == "" || input.Password == "" || input.Phone == "" || input.Role == "" {
		return models.User{}, apperr.Validation("Todos os campos são obrigatórios.")
	}
	if len(input.Name) > 100 {
		return models.User{}, apperr.Validation("O nome deve ter no máximo 100 caracteres.")
	}
	if !emailPattern.MatchString(input.Email) {
		return models.User{}, apperr.Validation("E-mail inválido.")
	}
	if !phonePattern.MatchString(input.Phone) {
		return models.User{}, apperr.Validation("Telefone inválido.")
	}
	if !models.UserRole(input.Role).Valid() {
		return models.User{}, apperr.Validation("O tipo deve ser estudante ou proprietario.")
	}
	if len(input.Password) < s.cfg.MinPasswordLen {
		return models.User{}, apperr.Validation(fmt.Sprintf("A senha deve ter no mínimo %d caracteres.", s.cfg.MinPasswordLen))
	}
	if len(input.Password) > 100 {
		return models.User{}, apperr.Validation("A senha deve ter no máximo 100 caracteres.")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return models.User{}, apperr.Validation("E-mail já cadastrado.")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: passwordHash,
		Phone:        input.Phone,
		Role:         models.UserRole(input.Role),
	}

	if input.Photo != nil {
		photoURL, err := s.uploadPhoto(ctx, user.ID, input.Photo)
		if err != nil {
			return models.User{}, apperr.Dependency("Erro ao enviar a foto!", err)
		}
		user.PhotoURL = &photoURL
	}

	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *UserService) uploadPhoto(ctx context.Context, userID string, header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer file.Close()

	key := fmt.Sprintf("usuarios/%s/%s", userID, ids.New())
	return s.images.Upload(ctx, key, file, header.Size, header.Header.Get("Content-Type"))
}

// Login verifies credentials and issues a bearer token carrying only the
// user's identity and role.
func (s *UserService) Login(ctx context.Context, email, password string) (models.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return models.User{}, "", apperr.Validation("O e-mail e a senha são obrigatórios.")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, "", apperr.Authentication("Usuário ou senha inválidos.")
		}
		return models.User{}, "", err
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return models.User{}, "", apperr.Authentication("Usuário ou senha inválidos.")
	}

	token, err := security.GenerateToken(s.cfg.JWTSecret, user.ID, string(user.Role), s.cfg.JWTTTL)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

func (s *UserService) Profile(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.NotFound("Usuário não encontrado.")
		}
		return models.User{}, err
	}
	return user, nil
}

type UpdateProfileInput struct {
	Name            *string
	Email           *string
	Phone           *string
	CurrentPassword string
	NewPassword     string
	RoleProvided    bool
	Photo           *multipart.FileHeader
}

// UpdateProfile mutates the profile after re-verifying the current
// credential. The role is immutable.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.NotFound("Usuário não encontrado.")
		}
		return models.User{}, err
	}

	if input.RoleProvided {
		return models.User{}, apperr.Authorization("Não é permitido alterar o tipo de usuário.")
	}

	ok, err := security.VerifyPassword(input.CurrentPassword, user.PasswordHash)
	if input.CurrentPassword == "" || err != nil || !ok {
		return models.User{}, apperr.Validation("Senha atual incorreta.")
	}

	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		user.Name = strings.TrimSpace(*input.Name)
	}

	if input.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*input.Email))
		if email != "" && email != user.Email {
			if !emailPattern.MatchString(email) {
				return models.User{}, apperr.Validation("E-mail inválido.")
			}
			if _, err := s.users.FindByEmail(ctx, email); err == nil {
				return models.User{}, apperr.Validation("E-mail já em uso por outro usuário.")
			} else if !errors.Is(err, repository.ErrUserNotFound) {
				return models.User{}, err
			}
			user.Email = email
		}
	}

	if input.Phone != nil && *input.Phone != "" {
		if !phonePattern.MatchString(*input.Phone) {
			return models.User{}, apperr.Validation("Telefone inválido.")
		}
		user.Phone = *input.Phone
	}

	if input.NewPassword != "" {
		if input.NewPassword == input.CurrentPassword {
			return models.User{}, apperr.Validation("Digite uma nova senha diferente da atual.")
		}
		if len(input.NewPassword) < s.cfg.MinPasswordLen {
			return models.User{}, apperr.Validation(fmt.Sprintf("A nova senha deve ter no mínimo %d caracteres.", s.cfg.MinPasswordLen))
		}
		hash, err := security.HashPassword(input.NewPassword)
		if err != nil {
			return models.User{}, err
		}
		user.PasswordHash = hash
	}

	if input.Photo != nil {
		photoURL, err := s.uploadPhoto(ctx, user.ID, input.Photo)
		if err != nil {
			return models.User{}, apperr.Dependency("Erro ao enviar a foto!", err)
		}
		user.PhotoURL = &photoURL
	}

	if err := s.users.Update(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *UserService) ListStudents(ctx context.Context) ([]models.User, error) {
	return s.users.ListStudents(ctx)
}

// ToggleFavorite flips the favorite mark for a listing. The operation is
// idempotent in either direction.
func (s *UserService) ToggleFavorite(ctx context.Context, actor models.User, listingID string) (added bool, favoriteIDs []string, err error) {
	if actor.Role != models.UserRoleStudent {
		return false, nil, apperr.Authorization("Apenas estudantes podem favoritar imóveis.")
	}

	if _, err := s.listings.GetByID(ctx, listingID); err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return false, nil, apperr.NotFound("Imóvel não encontrado.")
		}
		return false, nil, err
	}

	exists, err := s.favorites.Exists(ctx, actor.ID, listingID)
	if err != nil {
		return false, nil, err
	}

	if exists {
		err = s.favorites.Remove(ctx, actor.ID, listingID)
	} else {
		err = s.favorites.Add(ctx, actor.ID, listingID)
	}
	if err != nil {
		return false, nil, err
	}

	favoriteIDs, err = s.favorites.ListIDs(ctx, actor.ID)
	if err != nil {
		return false, nil, err
	}
	return !exists, favoriteIDs, nil
}
