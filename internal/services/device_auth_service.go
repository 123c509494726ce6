package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/doorsync/internal/models"
	"github.com/prudhvinik1/doorsync/internal/repositories"
	"github.com/prudhvinik1/doorsync/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid device id or secret")
	ErrDeviceRevoked      = errors.New("device has been revoked")
	ErrInvalidToken       = errors.New("invalid token")
)

// DeviceAuthService enrolls scanning devices and issues their tokens.
// Tokens are backed by a Redis session, so revoking a lost scanner takes
// effect immediately instead of waiting for expiry.
type DeviceAuthService struct {
	deviceRepo  repositories.DeviceRepository
	sessionRepo repositories.SessionRepository
	jwtSecret   string
	jwtExpiry   time.Duration
}

type EnrollResponse struct {
	DeviceID uuid.UUID
	// Secret is shown exactly once, at enrollment.
	Secret string
}

type LoginResponse struct {
	Token     string
	ExpiresAt time.Time
	DeviceID  uuid.UUID
}

type TokenClaims struct {
	DeviceID  uuid.UUID
	SessionID string
}

func NewDeviceAuthService(
	deviceRepo repositories.DeviceRepository,
	sessionRepo repositories.SessionRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
) *DeviceAuthService {
	return &DeviceAuthService{
		deviceRepo:  deviceRepo,
		sessionRepo: sessionRepo,
		jwtSecret:   jwtSecret,
		jwtExpiry:   jwtExpiry,
	}
}

// Enroll registers a new device and returns its one-time secret.
func (s *DeviceAuthService) Enroll(ctx context.Context, name string) (*EnrollResponse, error) {
	secret, err := utils.NewDeviceSecret()
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash device secret: %w", err)
	}

	device := &models.Device{
		Name:       name,
		SecretHash: hash,
	}
	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	return &EnrollResponse{DeviceID: device.ID, Secret: secret}, nil
}

// Login validates the device secret and issues a session-backed token.
func (s *DeviceAuthService) Login(ctx context.Context, deviceID uuid.UUID, secret string) (*LoginResponse, error) {
	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err == repositories.ErrNotFound {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	if device.RevokedAt != nil {
		return nil, ErrDeviceRevoked
	}
	if !utils.CheckSecret(device.SecretHash, secret) {
		return nil, ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	expiresAt := time.Now().Add(s.jwtExpiry)
	session := &models.Session{
		ID:        sessionID,
		DeviceID:  device.ID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.generateToken(device.ID, sessionID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		DeviceID:  device.ID,
	}, nil
}

// Revoke locks a device out and drops all its sessions.
func (s *DeviceAuthService) Revoke(ctx context.Context, deviceID uuid.UUID) error {
	if err := s.deviceRepo.Revoke(ctx, deviceID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteAllForDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to delete device sessions: %w", err)
	}
	return nil
}

func (s *DeviceAuthService) generateToken(deviceID uuid.UUID, sessionID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": deviceID.String(),
		"jti": sessionID,
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken validates the JWT and confirms its session still exists.
func (s *DeviceAuthService) VerifyToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	jti, _ := claims["jti"].(string)
	deviceID, err := uuid.Parse(sub)
	if err != nil || jti == "" {
		return nil, ErrInvalidToken
	}

	// Session gone = token revoked, regardless of its expiry.
	if _, err := s.sessionRepo.GetByID(ctx, jti); err != nil {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{DeviceID: deviceID, SessionID: jti}, nil
}
