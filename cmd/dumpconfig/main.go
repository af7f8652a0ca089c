package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/tokenboard/tokenboard/internal/config"
)

// dumpconfig prints the resolved configuration so env/file layering can be
// checked without starting the daemon. Secrets are redacted.
func main() {
	configFile := flag.String("config", "", "optional config file path")
	envFile := flag.String("env", "", "optional .env file path")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg.Database.URL = redact(cfg.Database.URL)
	cfg.Redis.URL = redact(cfg.Redis.URL)
	cfg.Admin.JWTSecret = redact(cfg.Admin.JWTSecret)
	cfg.Admin.BootstrapPassword = redact(cfg.Admin.BootstrapPassword)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		log.Fatalf("encode config: %v", err)
	}
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return "<redacted>"
}
