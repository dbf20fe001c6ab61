package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"proofsy/internal/config"
	"proofsy/internal/domain"
	cryptoinfra "proofsy/internal/infra/crypto"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestLoadSigningKey(t *testing.T) {
	key, err := cryptoinfra.GenerateKey(domain.AlgEd25519)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemBytes, err := cryptoinfra.MarshalPrivateKeyPEM(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "signing.pem")
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	log := logrus.NewEntry(testLogger())

	tests := []struct {
		name    string
		cfg     config.Config
		wantAlg string
		wantErr bool
	}{
		{name: "inline pem", cfg: config.Config{SigningPrivateKeyPEM: string(pemBytes), SigningAlgorithm: "ed25519"}, wantAlg: "ed25519"},
		{name: "path", cfg: config.Config{SigningPrivateKeyPath: path}, wantAlg: "ed25519"},
		{name: "algorithm mismatch", cfg: config.Config{SigningPrivateKeyPath: path, SigningAlgorithm: "es256"}, wantErr: true},
		{name: "missing file", cfg: config.Config{SigningPrivateKeyPath: filepath.Join(t.TempDir(), "none.pem")}, wantErr: true},
		{name: "ephemeral", cfg: config.Config{SigningAlgorithm: "rs256"}, wantAlg: "rs256"},
		{name: "production requires key", cfg: config.Config{Env: "production"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadSigningKey(tt.cfg, log)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Algorithm() != tt.wantAlg {
				t.Fatalf("expected %s, got %s", tt.wantAlg, got.Algorithm())
			}
		})
	}
}

func TestNewAnchorProvider(t *testing.T) {
	if p, err := newAnchorProvider(config.Config{}); err != nil || p.ProviderName() != "local" {
		t.Fatalf("expected local provider by default, got %v %v", p, err)
	}
	if _, err := newAnchorProvider(config.Config{AnchorMode: config.AnchorModeNumbers}); err == nil {
		t.Fatalf("expected numbers mode without api key to fail")
	}
	p, err := newAnchorProvider(config.Config{AnchorMode: config.AnchorModeNumbers, NumbersAPIKey: "secret"})
	if err != nil || p.ProviderName() != "numbers" {
		t.Fatalf("expected numbers provider, got %v %v", p, err)
	}
	if _, err := newAnchorProvider(config.Config{AnchorMode: "ipfs"}); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
}

func TestNewAppMemoryMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := newApp(config.Config{SigningAlgorithm: "es256", RateLimitRequests: 5}, testLogger())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()
	if app.storageMode != "memory" {
		t.Fatalf("unexpected storage mode %s", app.storageMode)
	}

	w := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
