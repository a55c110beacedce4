package main

import (
	"testing"

	"github.com/fnsdeividy/base-arch-sub000/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected short auth secret to be rejected")
	}
	err := validateSecurityConfig(config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "*",
		DatabaseURL:   "postgres://costing@localhost/costing",
	})
	if err == nil {
		t.Fatalf("expected wildcard origin with postgres to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "https://costing.example.com",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
