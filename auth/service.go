package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrInvalidRegistration signals missing or malformed registration fields.
	ErrInvalidRegistration = errors.New("auth: invalid registration")
	// ErrNotFamilyParent signals that only a parent of the family may add members.
	ErrNotFamilyParent = errors.New("auth: only a parent of the family can add members")
)

const tokenTTL = 24 * time.Hour

// Service handles member registration, login and token verification.
type Service struct {
	repo        Repository
	jwtSecret   []byte
	idGenerator func() string
	now         func() time.Time
}

// LoginResult bundles the token and member returned after a successful login.
type LoginResult struct {
	Token  string
	Member Member
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:        repo,
		jwtSecret:   []byte(jwtSecret),
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register founds a new family with a parent as its first member. FamilyID is
// generated when empty; a supplied id that already has members is rejected
// with ErrFamilyExists. Everyone else joins through AddFamilyMember.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Member, error) {
	if req.FamilyID == "" {
		req.FamilyID = uuid.NewString()
	}
	if req.Role != RoleParent {
		return nil, fmt.Errorf("%w: a new family must be founded by a parent", ErrInvalidRegistration)
	}
	return s.createMember(ctx, req, true)
}

// AddFamilyMember registers a child or another parent into the inviter's
// family. The inviter must be a parent of that family.
func (s *Service) AddFamilyMember(ctx context.Context, inviter Identity, req RegisterRequest) (*Member, error) {
	if inviter.Role != RoleParent || inviter.FamilyID == "" {
		return nil, ErrNotFamilyParent
	}
	if req.FamilyID != "" && req.FamilyID != inviter.FamilyID {
		return nil, ErrNotFamilyParent
	}
	req.FamilyID = inviter.FamilyID
	return s.createMember(ctx, req, false)
}

// createMember validates req and stores the member. Role has no default: a
// family account must say who the child is.
func (s *Service) createMember(ctx context.Context, req RegisterRequest, newFamily bool) (*Member, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.Email == "" || req.FullName == "" || req.FamilyID == "" {
		return nil, fmt.Errorf("%w: family_id, email and full_name are required", ErrInvalidRegistration)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if !isValidRole(role) {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidRegistration, role)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	member, err := s.repo.CreateMember(ctx, CreateMemberParams{
		ID:           s.idGenerator(),
		FamilyID:     req.FamilyID,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		Role:         role,
		NewFamily:    newFamily,
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// Login authenticates a member and returns a signed token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	member, err := s.repo.GetMemberByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(Identity{UserID: member.ID, FamilyID: member.FamilyID, Role: member.Role})
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}
	return LoginResult{Token: token, Member: member}, nil
}

// GetMemberByID returns nil when the member does not exist.
func (s *Service) GetMemberByID(ctx context.Context, memberID string) (*Member, error) {
	member, err := s.repo.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// FamilyMembers splits a family into child and parent member ids.
func (s *Service) FamilyMembers(ctx context.Context, familyID string) (children, parents []string, err error) {
	members, err := s.repo.ListFamily(ctx, familyID)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range members {
		switch m.Role {
		case RoleChild:
			children = append(children, m.ID)
		case RoleParent:
			parents = append(parents, m.ID)
		}
	}
	return children, parents, nil
}

// VerifyToken validates a token and returns the identity it carries.
func (s *Service) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("auth: invalid user_id in token")
	}
	familyID, ok := claims["family_id"].(string)
	if !ok || familyID == "" {
		return Identity{}, fmt.Errorf("auth: invalid family_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("auth: invalid role in token")
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Identity{}, fmt.Errorf("auth: invalid role %q in token", roleStr)
	}
	return Identity{UserID: userID, FamilyID: familyID, Role: role}, nil
}

// IssueToken signs a token for the identity, valid for 24 hours.
func (s *Service) IssueToken(id Identity) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id":   id.UserID,
		"family_id": id.FamilyID,
		"role":      string(id.Role),
		"exp":       now.Add(tokenTTL).Unix(),
		"iat":       now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func isValidRole(role Role) bool {
	switch role {
	case RoleChild, RoleParent:
		return true
	default:
		return false
	}
}
