package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

const (
	MinPasswordLength = 6
	MinUsernameLength = 3
	MaxUsernameLength = 32
)

const invalidCredentials = "Nom d'utilisateur ou mot de passe incorrect"

// SessionStore garde la liste des jetons de rafraîchissement révoqués.
type SessionStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Service struct {
	users    store.UserStore
	tokens   *TokenManager
	sessions SessionStore
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(users store.UserStore, tokens *TokenManager, sessions SessionStore, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		log:      log.WithField("component", "auth"),
		now:      time.Now,
	}
}

func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// LoginResult est retourné par Login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	RefreshTTL   time.Duration
	User         *models.User
}

func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", apperr.New(apperr.InvalidInput, "Nom d'utilisateur et mot de passe requis")
	}
	if n := utf8.RuneCountInString(username); n < MinUsernameLength || n > MaxUsernameLength {
		return "", apperr.Newf(apperr.InvalidInput, "Le nom d'utilisateur doit contenir entre %d et %d caractères", MinUsernameLength, MaxUsernameLength)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", apperr.Newf(apperr.InvalidInput, "Le mot de passe doit contenir au moins %d caractères", MinPasswordLength)
	}
	return username, nil
}

func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, apperr.New(apperr.Conflict, "Nom d'utilisateur déjà utilisé")
	} else if !apperr.IsKind(err, apperr.NotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "hash du mot de passe")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Roles:        models.Roles{models.RoleUser},
		Active:       true,
		CreatedAt:    s.now().UTC(),
	}
	// L'index unique reste l'arbitre en cas d'inscriptions concurrentes.
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithField("username", username).Info("👤 Nouvel utilisateur inscrit")
	return user, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.New(apperr.InvalidInput, "Nom d'utilisateur et mot de passe requis")
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil, apperr.New(apperr.Unauthorized, invalidCredentials)
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperr.New(apperr.Unauthorized, invalidCredentials)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("⚠️ Hash de mot de passe illisible")
	}
	if !ok {
		return nil, apperr.New(apperr.Unauthorized, invalidCredentials)
	}

	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "signature du token")
	}
	refresh, _, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "signature du token")
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		RefreshTTL:   s.tokens.RefreshTTL(),
		User:         user,
	}, nil
}

// Refresh émet un nouveau jeton d'accès à partir des données utilisateur
// actuelles, pas de celles figées dans le jeton de rafraîchissement.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, *models.User, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", nil, err
	}

	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, err, "vérification de révocation")
	}
	if revoked {
		return "", nil, apperr.New(apperr.Unauthorized, "Session révoquée")
	}

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return "", nil, apperr.New(apperr.Unauthorized, "Utilisateur inconnu")
		}
		return "", nil, err
	}
	if !user.Active {
		return "", nil, apperr.New(apperr.Unauthorized, "Compte désactivé")
	}

	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, err, "signature du token")
	}
	return access, user, nil
}

// Logout révoque le jeton jusqu'à son expiration. Un jeton absent ou
// illisible n'est pas une erreur.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.sessions.Revoke(ctx, claims.ID, ttl)
}

// EnsureAdmin crée le compte administrateur au démarrage, ou ajoute le rôle
// Admin à un compte existant.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	user, err := s.users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if user.IsAdmin() && user.Roles.Has(models.RoleUser) && user.Active {
			return nil
		}
		user.Roles = user.Roles.With(models.RoleUser).With(models.RoleAdmin)
		user.Active = true
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return err
		}
		s.log.WithField("username", username).Info("🔑 Rôle Admin ajouté au compte existant")
		return nil
	case !apperr.IsKind(err, apperr.NotFound):
		return err
	}

	if password == "" {
		return apperr.New(apperr.InvalidInput, "ADMIN_PASSWORD requis pour créer le compte administrateur")
	}
	created, err := s.Register(ctx, username, password)
	if err != nil {
		return err
	}
	created.Roles = models.Roles{models.RoleUser, models.RoleAdmin}
	if err := s.users.UpdateUser(ctx, created); err != nil {
		return err
	}
	s.log.WithField("username", username).Info("🔑 Compte administrateur créé")
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

// SetRoles remplace les rôles d'un utilisateur. Le rôle User est toujours conservé.
func (s *Service) SetRoles(ctx context.Context, id string, roles []string) (*models.User, error) {
	if len(roles) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "Au moins un rôle est requis")
	}
	next := models.Roles{models.RoleUser}
	for _, r := range roles {
		role, ok := models.ParseRole(r)
		if !ok {
			return nil, apperr.Newf(apperr.InvalidInput, "Rôle inconnu: %s", r)
		}
		next = next.With(role)
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Roles = next
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Active = active
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
