package main

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/revmigrate/internal/config"
	"github.com/ALT-F4-LLC/revmigrate/internal/store"
	"github.com/ALT-F4-LLC/revmigrate/internal/store/firebase"
	"github.com/ALT-F4-LLC/revmigrate/internal/store/sqlitestore"
)

const sqlitePrefix = "sqlite:"

// openStore connects to the store named by the configured URL.
func openStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if path, ok := strings.CutPrefix(cfg.StoreURL, sqlitePrefix); ok {
		return sqlitestore.Open(path)
	}
	return firebase.New(firebase.Config{
		BaseURL: cfg.StoreURL,
		Secret:  cfg.StoreSecret,
		Timeout: cfg.RequestTimeout,
	}, log)
}
