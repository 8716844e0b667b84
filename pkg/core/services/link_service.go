package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"net/url"
	"time"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrCodeSpaceCrowded = errors.New("failed to generate unique code")
)

const (
	shortCodeLength   = 8
	shortCodeAttempts = 5
)

type LinkService struct {
	repo ports.LinkRepository
	now  func() time.Time
}

func NewLinkService(repo ports.LinkRepository) *LinkService {
	return &LinkService{repo: repo, now: time.Now}
}

// Shorten stores a link owned by userID when set, otherwise by anonymousID.
func (s *LinkService) Shorten(ctx context.Context, originalURL string, userID *int64, anonymousID *string) (*domain.Link, error) {
	if !isValidURL(originalURL) {
		return nil, ErrInvalidURL
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	if userID != nil {
		anonymousID = nil
	}

	now := s.now()
	link := &domain.Link{
		OriginalURL: originalURL,
		ShortCode:   code,
		UserID:      userID,
		AnonymousID: anonymousID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, err
	}

	return link, nil
}

func (s *LinkService) GetLinkByShortCode(ctx context.Context, code string) (*domain.Link, error) {
	link, err := s.repo.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrNotFound
	}
	return link, nil
}

// RedirectAndCount resolves code and records the visit before answering,
// so the click is counted by the time the redirect is served.
func (s *LinkService) RedirectAndCount(ctx context.Context, code, referer, userAgent, ip string) (string, error) {
	link, err := s.GetLinkByShortCode(ctx, code)
	if err != nil {
		return "", err
	}

	visit := &domain.Visit{
		LinkID:    link.ID,
		Referer:   referer,
		UserAgent: userAgent,
		IPHash:    hashIP(ip),
		CreatedAt: s.now(),
	}
	if err := s.repo.RecordVisit(ctx, visit); err != nil {
		return "", err
	}

	return link.OriginalURL, nil
}

// ListLinks lists a user's links, an anonymous identity's links, or all
// links when neither is given.
func (s *LinkService) ListLinks(ctx context.Context, userID *int64, anonymousID string) ([]domain.Link, error) {
	switch {
	case userID != nil:
		return s.repo.ListByUserID(ctx, *userID)
	case anonymousID != "":
		return s.repo.ListByAnonymousID(ctx, anonymousID)
	default:
		return s.repo.List(ctx)
	}
}

func (s *LinkService) ClaimAnonymousLinks(ctx context.Context, userID int64, anonymousID string) (int64, error) {
	if anonymousID == "" {
		return 0, errors.New("anonymous_id is required")
	}
	return s.repo.ClaimAnonymous(ctx, userID, anonymousID)
}

func (s *LinkService) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < shortCodeAttempts; i++ {
		code, err := generateShortCode(shortCodeLength)
		if err != nil {
			return "", err
		}
		existing, err := s.repo.GetByShortCode(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", ErrCodeSpaceCrowded
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// hashIP keeps visits countable per client without storing the address.
func hashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateShortCode(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}

var _ ports.LinkService = (*LinkService)(nil)
