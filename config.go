package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ============================================================================
// Configuration
// ============================================================================

const (
	MsgConfigMissingToken   = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidGuildID = "invalid GUILD_ID: must be a valid Snowflake"

	// Environment Variables
	EnvDiscordToken  = "DISCORD_TOKEN"
	EnvSilent        = "SILENT"
	EnvOwnerIDs      = "OWNER_IDS"
	EnvGuildID       = "GUILD_ID"
	EnvStatsInterval = "STATS_REFRESH_MINUTES"
	EnvXPMin         = "XP_MIN"
	EnvXPMax         = "XP_MAX"
)

type Config struct {
	Token            string
	GuildID          string
	DatabasePath     string
	OwnerIDs         []string
	Silent           bool
	StatsRefreshMins int
	XPMin            int
	XPMax            int
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv(EnvDiscordToken)
	dbPath := filepath.Join(".", GetProjectName()+".db")

	silent, _ := strconv.ParseBool(os.Getenv(EnvSilent))

	ownerIDsStr := os.Getenv(EnvOwnerIDs)
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:        token,
		GuildID:      os.Getenv(EnvGuildID),
		DatabasePath: dbPath,
		OwnerIDs:     ownerIDs,
		Silent:       silent,
	}

	cfg.StatsRefreshMins, _ = strconv.Atoi(os.Getenv(EnvStatsInterval))
	if cfg.StatsRefreshMins == 0 {
		cfg.StatsRefreshMins = 10
	}
	cfg.XPMin, _ = strconv.Atoi(os.Getenv(EnvXPMin))
	if cfg.XPMin == 0 {
		cfg.XPMin = 5
	}
	cfg.XPMax, _ = strconv.Atoi(os.Getenv(EnvXPMax))
	if cfg.XPMax == 0 {
		cfg.XPMax = 14
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf(MsgConfigInvalidGuildID)
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
