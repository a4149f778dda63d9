package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/service"
)

// issue-token signs a candidate token with JWT_SECRET for local testing of the
// engine without an identity provider.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, logger.FileOptions{})

	verifier := service.NewTokenVerifier(cfg.JWTSecret)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Candidate Token ===")

	// Candidate ID
	fmt.Print("Enter Candidate ID: ")
	candidateID, _ := reader.ReadString('\n')
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		fmt.Println("Error: Candidate ID is required")
		return
	}

	// Name
	fmt.Print("Enter Name (optional): ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	// TTL
	fmt.Print("Enter validity in hours (default 4): ")
	ttlStr, _ := reader.ReadString('\n')
	ttlStr = strings.TrimSpace(ttlStr)
	hours := 4
	if ttlStr != "" {
		h, err := strconv.Atoi(ttlStr)
		if err != nil || h <= 0 {
			fmt.Println("Error: validity must be a positive number of hours")
			return
		}
		hours = h
	}

	// ─── Logic ─────────────────────────────────────────────────────────

	token, err := verifier.Issue(candidateID, name, time.Duration(hours)*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Printf("\nToken for candidate '%s' (valid %dh):\n%s\n", candidateID, hours, token)
}
