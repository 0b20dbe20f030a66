package service

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"regexp"
	"strings"

	"github.com/honeynil/CampusGigService/internal/infrastructure/auth"
	"github.com/honeynil/CampusGigService/internal/infrastructure/kafka"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const (
	referralCodeAttempts = 5
	referralSuffixLen    = 4
	base36               = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*models.Session, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Logout(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*models.User, error)
}

type SignupInput struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	Block           string `json:"block"`
	ProfilePhotoURL string `json:"profile_photo_url"`
	CollegeIDURL    string `json:"college_id_url"`
	ReferredByCode  string `json:"referred_by_code"`
}

type authService struct {
	store       repository.Store
	redisClient redis.RedisClient
	jwt         *auth.JWTManager
	notify      notifier
	adminEmails map[string]bool
}

func NewAuthService(
	store repository.Store,
	redisClient redis.RedisClient,
	publisher EventPublisher,
	jwt *auth.JWTManager,
	adminEmails []string,
) *authService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(e)] = true
	}
	return &authService{
		store:       store,
		redisClient: redisClient,
		jwt:         jwt,
		notify:      notifier{cache: redisClient, publisher: publisher},
		adminEmails: admins,
	}
}

func (s *authService) Signup(ctx context.Context, in SignupInput) (session *models.Session, err error) {
	ctx, span := startSpan(ctx, "auth-service", "Signup")
	defer func() { endSpan(span, err) }()

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: name and password are required", pkgerrors.ErrInvalidInput)
	}
	if _, parseErr := mail.ParseAddress(in.Email); parseErr != nil {
		return nil, fmt.Errorf("%w: invalid email", pkgerrors.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "method", "Signup", "email", in.Email, "error", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:            in.Name,
		Phone:           strings.TrimSpace(in.Phone),
		Email:           in.Email,
		Block:           in.Block,
		ProfilePhotoURL: in.ProfilePhotoURL,
		CollegeIDURL:    in.CollegeIDURL,
		PasswordHash:    string(hash),
		Rating:          5.0,
		WalletBalance:   decimal.Zero,
		IsAdmin:         s.adminEmails[in.Email],
		ReferredByCode:  strings.ToUpper(strings.TrimSpace(in.ReferredByCode)),
		UsedCouponCodes: map[string]int{},
	}

	for attempt := 1; ; attempt++ {
		user.ID = ""
		user.ReferralCode, err = GenerateReferralCode(user.Name)
		if err != nil {
			return nil, err
		}
		err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.Users().Create(ctx, user)
		})
		if !stderrors.Is(err, pkgerrors.ErrReferralCodeTaken) || attempt == referralCodeAttempts {
			break
		}
		slog.Warn("referral code collision, retrying", "method", "Signup", "attempt", attempt)
	}
	if err != nil {
		slog.Error("failed to create user", "method", "Signup", "email", in.Email, "error", err)
		return nil, err
	}

	session, err = s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.notify.committed(ctx, kafka.TopicUsers, kafka.Event{
		Type:     "user.signed_up",
		EntityID: user.ID,
		UserIDs:  []string{user.ID},
		Payload:  user,
	})
	slog.Info("user signed up", "method", "Signup", "user_id", user.ID, "referred", user.ReferredByCode != "")
	return session, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (session *models.Session, err error) {
	ctx, span := startSpan(ctx, "auth-service", "Login")
	defer func() { endSpan(span, err) }()

	email = strings.ToLower(strings.TrimSpace(email))
	var user *models.User
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var getErr error
		user, getErr = tx.Users().GetByEmail(ctx, email)
		return getErr
	})
	if err != nil {
		slog.Warn("failed to login", "method", "Login", "email", email, "error", err)
		if stderrors.Is(err, pkgerrors.ErrNotFound) || stderrors.Is(err, pkgerrors.ErrInvalidInput) {
			return nil, pkgerrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("invalid password", "method", "Login", "user_id", user.ID)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	session, err = s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	slog.Info("user logged in", "method", "Login", "user_id", user.ID)
	return session, nil
}

func (s *authService) Logout(ctx context.Context, userID string) (err error) {
	ctx, span := startSpan(ctx, "auth-service", "Logout")
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return pkgerrors.ErrUnauthenticated
	}
	if err = s.redisClient.Del(ctx, redis.TokenKey(userID), redis.BalanceKey(userID)); err != nil {
		slog.Error("failed to revoke token", "method", "Logout", "user_id", userID, "error", err)
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	slog.Info("user logged out", "method", "Logout", "user_id", userID)
	return nil
}

func (s *authService) Me(ctx context.Context, userID string) (user *models.User, err error) {
	ctx, span := startSpan(ctx, "auth-service", "Me")
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, pkgerrors.ErrUnauthenticated
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var getErr error
		user, getErr = tx.Users().GetByID(ctx, userID)
		return getErr
	})
	return user, err
}

func (s *authService) issueSession(ctx context.Context, user *models.User) (*models.Session, error) {
	token, expiresAt, err := s.jwt.GenerateJWT(user.ID, user.IsAdmin)
	if err != nil {
		slog.Error("failed to generate JWT", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	if err := s.redisClient.Set(ctx, redis.TokenKey(user.ID), token, s.jwt.TTL()); err != nil {
		slog.Error("failed to cache JWT", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return &models.Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// GenerateReferralCode builds a code from the first name reduced to [a-z0-9]
// followed by four random base36 characters, upper-cased.
func GenerateReferralCode(name string) (string, error) {
	first := ""
	if fields := strings.Fields(name); len(fields) > 0 {
		first = nonAlnum.ReplaceAllString(strings.ToLower(fields[0]), "")
	}
	suffix := make([]byte, referralSuffixLen)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36))))
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		suffix[i] = base36[n.Int64()]
	}
	return strings.ToUpper(first + string(suffix)), nil
}
