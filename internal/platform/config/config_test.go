package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "tb-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "tb-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Notifications.PubSubProjectID != "tb-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.Notifications.PubSubProjectID)
	}
	if cfg.Gateway.Currency != "INR" {
		t.Errorf("expected INR, got %s", cfg.Gateway.Currency)
	}
	if cfg.Payments.PendingTimeout != 3*time.Minute {
		t.Errorf("expected 3m pending timeout, got %s", cfg.Payments.PendingTimeout)
	}
	if cfg.Payments.SweepInterval != time.Minute {
		t.Errorf("expected 1m sweep interval, got %s", cfg.Payments.SweepInterval)
	}
	if len(cfg.Events.KafkaBrokers) != 0 {
		t.Errorf("expected no kafka brokers, got %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Redis.Addr != defaultRedisAddr {
		t.Errorf("unexpected redis addr %s", cfg.Redis.Addr)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                     "9090",
		"API_SERVER_IDLE_TIMEOUT":             "2m",
		"API_FIREBASE_PROJECT_ID":             "tb-prod",
		"API_FIRESTORE_PROJECT_ID":            "tb-fire",
		"API_GATEWAY_STRIPE_API_KEY":          "secret://stripe/api",
		"API_GATEWAY_SIGNATURE_SECRET":        "sm://gateway/signature",
		"API_GATEWAY_CURRENCY":                "inr",
		"API_PAYMENTS_PENDING_TIMEOUT":        "5m",
		"API_PAYMENTS_SWEEP_BATCH":            "25",
		"API_NOTIFICATIONS_OPERATOR_TOPIC":    "ops",
		"API_NOTIFICATIONS_OPERATOR_EMAIL":    "kitchen@example.com",
		"API_EVENTS_KAFKA_BROKERS":            "kafka-1:9092, kafka-2:9092",
		"API_REDIS_ADDR":                      "redis:6379",
		"API_REDIS_DB":                        "2",
		"API_AUTH_JWT_SECRET":                 "secret://auth/jwt",
		"API_SECURITY_ENVIRONMENT":            "PROD",
		"API_SECURITY_OIDC_AUDIENCES":         "prod=https://api.example.com,stg=https://stg.example.com",
		"API_SECURITY_OIDC_ISSUERS":           "https://accounts.google.com, https://cloud.google.com/iap",
		"API_IDEMPOTENCY_TTL":                 "48h",
		"API_NOTIFICATIONS_PUBSUB_PROJECT_ID": "tb-ops",
	}

	secrets := map[string]string{
		"secret://stripe/api":        "sk_live",
		"secret://gateway/signature": "sig-secret",
		"secret://auth/jwt":          "jwt-secret",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "tb-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.Gateway.StripeAPIKey != "sk_live" || cfg.Gateway.SignatureSecret != "sig-secret" {
		t.Errorf("expected resolved gateway secrets, got %+v", cfg.Gateway)
	}
	if cfg.Gateway.Currency != "INR" {
		t.Errorf("expected upper-cased currency, got %s", cfg.Gateway.Currency)
	}
	if cfg.Payments.PendingTimeout != 5*time.Minute || cfg.Payments.SweepBatch != 25 {
		t.Errorf("unexpected payments config %+v", cfg.Payments)
	}
	if cfg.Notifications.PubSubProjectID != "tb-ops" || cfg.Notifications.OperatorTopic != "ops" {
		t.Errorf("unexpected notifications config %+v", cfg.Notifications)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Auth.JWTSecret != "jwt-secret" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.Audience != "https://api.example.com" {
		t.Errorf("expected audience picked by environment, got %s", cfg.Security.OIDC.Audience)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("unexpected issuers %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"tb-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "tb-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadIgnoresMissingDotEnv(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "tb-dev"}
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithEnvMap(env), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	env := map[string]string{
		"API_PAYMENTS_SWEEP_BATCH": "0",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firebase.ProjectID": false, "Firestore.ProjectID": false, "Payments.SweepBatch": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in %v", field, fields)
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":    "tb-dev",
		"API_GATEWAY_STRIPE_API_KEY": "sm://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected resolver-not-configured cause, got %v", err)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "tb-dev"}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Gateway.SignatureSecret", "Gateway.SignatureSecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Gateway.SignatureSecret" {
		t.Fatalf("unexpected missing secrets %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "Gateway.SignatureSecret" {
		t.Fatalf("expected redacted name, got %v", redacted)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv value, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env value, got %s", got)
	}
}
