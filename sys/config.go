package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	MsgConfigMissingToken   = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidGuildID = "invalid GUILD_ID: must be a valid Snowflake"

	// Environment Variables
	EnvDiscordToken     = "DISCORD_TOKEN"
	EnvGuildID          = "GUILD_ID"
	EnvDatabasePath     = "DATABASE_PATH"
	EnvSilent           = "SILENT"
	EnvOwnerIDs         = "OWNER_IDS"
	EnvLavalinkHost     = "LAVALINK_HOST"
	EnvLavalinkPort     = "LAVALINK_PORT"
	EnvLavalinkPassword = "LAVALINK_PASSWORD"
	EnvLavalinkSecure   = "LAVALINK_SECURE"
	EnvAppAddr          = "APP_ADDR"
)

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	OwnerIDs     []string
	Silent       bool

	// External audio node
	LavalinkHost     string
	LavalinkPort     int
	LavalinkPassword string
	LavalinkSecure   bool

	// Dashboard HTTP listener
	AppAddr string
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv(EnvDiscordToken)
	dbPath := os.Getenv(EnvDatabasePath)
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

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
		Token:            token,
		GuildID:          os.Getenv(EnvGuildID),
		DatabasePath:     fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000", dbPath),
		OwnerIDs:         ownerIDs,
		Silent:           silent,
		LavalinkHost:     os.Getenv(EnvLavalinkHost),
		LavalinkPassword: os.Getenv(EnvLavalinkPassword),
		AppAddr:          os.Getenv(EnvAppAddr),
	}

	if cfg.LavalinkHost == "" {
		cfg.LavalinkHost = "lavalink"
	}
	cfg.LavalinkPort, _ = strconv.Atoi(os.Getenv(EnvLavalinkPort))
	if cfg.LavalinkPort == 0 {
		cfg.LavalinkPort = 2333
	}
	if cfg.LavalinkPassword == "" {
		cfg.LavalinkPassword = "youshallnotpass"
	}
	cfg.LavalinkSecure, _ = strconv.ParseBool(os.Getenv(EnvLavalinkSecure))
	if cfg.AppAddr == "" {
		cfg.AppAddr = ":3000"
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
	projectName := "otoha"
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
