package models

import "time"

// RegisterRequest creates a principal
type RegisterRequest struct {
	ID         string `json:"id"`
	Credential string `json:"credential"`
	Role       string `json:"role"`
}

type RegisterResponse struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthRequest exchanges a credential for a session token
type AuthRequest struct {
	ID         string `json:"id"`
	Credential string `json:"credential"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PrincipalResponse describes the caller as seen through its token
type PrincipalResponse struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Address string `json:"address"`
}

type RotateCredentialRequest struct {
	CurrentCredential string `json:"currentCredential"`
	NewCredential     string `json:"newCredential"`
}
