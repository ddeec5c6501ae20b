package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"signal-bridge/internal/api"
	"signal-bridge/pkg/config"
)

// issue_token prints a bearer token for the /api routes.
//
//	go run ./scripts/issue_token -service telegram-bot -ttl 720h
func main() {
	service := flag.String("service", "operator", "service name stored in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set; the API runs without auth")
	}

	token, err := api.GenerateToken(*service, cfg.JWTSecret, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
