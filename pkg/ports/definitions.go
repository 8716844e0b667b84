package ports

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
)

// TokenStore persists client credential material. Expiry is enforced by the
// store: an entry past its TTL reads as absent. A zero TTL never expires.
// Absence is not an error.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// AuthAPI is the unauthenticated half of the backend used by the session
// manager. ClaimLinks takes the bearer token explicitly.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*domain.AuthResult, error)
	Register(ctx context.Context, username, email, password string) (*domain.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	ClaimLinks(ctx context.Context, accessToken, anonymousID string) error
}

// LinkAPI is the link half of the backend, called through the authenticated transport.
type LinkAPI interface {
	Shorten(ctx context.Context, originalURL, anonymousID string) (*domain.ShortenResult, error)
	ListLinks(ctx context.Context, anonymousID string) (*domain.LinkList, error)
	GetLink(ctx context.Context, code string) (*domain.Link, error)
}

// LinkRepository defines storage operations for links
type LinkRepository interface {
	Create(ctx context.Context, link *domain.Link) error
	GetByShortCode(ctx context.Context, code string) (*domain.Link, error)
	List(ctx context.Context) ([]domain.Link, error)
	ListByUserID(ctx context.Context, userID int64) ([]domain.Link, error)
	ListByAnonymousID(ctx context.Context, anonymousID string) ([]domain.Link, error)
	ClaimAnonymous(ctx context.Context, userID int64, anonymousID string) (int64, error)

	// Stats
	RecordVisit(ctx context.Context, visit *domain.Visit) error
}

// UserRepository defines storage operations for accounts and refresh tokens
type UserRepository interface {
	CreateUser(ctx context.Context, account *domain.Account) error
	GetUserByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetUserByID(ctx context.Context, id int64) (*domain.Account, error)
	UserExists(ctx context.Context, username, email string) (bool, error)

	SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	// ConsumeRefreshToken revokes an active token and reports whether it was active.
	ConsumeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error)
}

// LinkService defines the business logic operations
type LinkService interface {
	Shorten(ctx context.Context, originalURL string, userID *int64, anonymousID *string) (*domain.Link, error)
	GetLinkByShortCode(ctx context.Context, code string) (*domain.Link, error)
	RedirectAndCount(ctx context.Context, code, referer, userAgent, ip string) (string, error)
	ListLinks(ctx context.Context, userID *int64, anonymousID string) ([]domain.Link, error)
	ClaimAnonymousLinks(ctx context.Context, userID int64, anonymousID string) (int64, error)
}

// AuthService defines account and token operations
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*domain.AuthResult, error)
	Login(ctx context.Context, email, password string) (*domain.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	ValidateAccessToken(token string) (*domain.Principal, error)
}
