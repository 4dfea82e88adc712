package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingBaseURL(t *testing.T) {
	cfg := Defaults()
	cfg.Source.BaseURL = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty source.baseUrl")
	}
}

func TestValidate_PageSizeBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Source.PageSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for pageSize=0")
	}

	cfg = Defaults()
	cfg.Source.PageSize = 1001
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for pageSize=1001")
	}

	cfg = Defaults()
	cfg.Source.PageSize = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("pageSize=1 should be valid: %v", err)
	}
}

func TestValidate_RetryAttemptsBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Source.RetryAttempts = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for retryAttempts=0")
	}

	cfg = Defaults()
	cfg.Source.RetryAttempts = 11
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for retryAttempts=11")
	}
}

func TestValidate_InvalidRetrieverMode(t *testing.T) {
	cfg := Defaults()
	cfg.Retriever.Mode = "magic"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid retriever mode")
	}
}

func TestValidate_ValidRetrieverModes(t *testing.T) {
	for _, mode := range []string{"lexical", "embedding"} {
		cfg := Defaults()
		cfg.Retriever.Mode = mode
		if err := Validate(cfg); err != nil {
			t.Fatalf("mode %q should be valid: %v", mode, err)
		}
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_FailoverChainUnknownProvider(t *testing.T) {
	cfg := Defaults()
	cfg.General.FailoverChain = []string{"groq", "nonexistent"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown provider in failover chain")
	}
}

func TestValidate_TelegramRequiresToken(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Enabled = true
	cfg.Telegram.Token = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled telegram without token")
	}
}

func TestValidate_ThresholdBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Retriever.MinScore = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for minScore > 1")
	}

	cfg = Defaults()
	cfg.Retriever.MinSimilarity = -0.1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative minSimilarity")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.Retriever.Mode = "embedding"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Retriever.Mode != "embedding" {
		t.Fatalf("expected 'embedding', got %q", loaded.Retriever.Mode)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	// Invalid: pageSize=0
	content := `{
		"source": {
			"baseUrl": "http://example.com",
			"pageSize": 0
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for pageSize=0")
	}
}

func TestLoadOrDefaults_MissingFileFallsBack(t *testing.T) {
	cfg, err := LoadOrDefaults("/nonexistent/xyz/config.json")
	if err != nil {
		t.Fatalf("expected defaults fallback, got: %v", err)
	}
	if cfg.Source.PageSize != 100 {
		t.Fatalf("expected default pageSize=100, got %d", cfg.Source.PageSize)
	}
}

func TestLoadOrDefaults_BrokenFileStillErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte("{broken"), 0o644)

	_, err := LoadOrDefaults(path)
	if err == nil {
		t.Fatal("expected error for broken existing file")
	}
}

// --- ApplyEnv ---

func TestApplyEnv_FillsEmptyAPIKeys(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test-12345")
	cfg := Defaults()
	ApplyEnv(cfg)
	if cfg.Providers["groq"].APIKey != "gsk-test-12345" {
		t.Fatalf("expected groq key from env, got %q", cfg.Providers["groq"].APIKey)
	}
}

func TestApplyEnv_DoesNotOverrideExisting(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg := Defaults()
	pc := cfg.Providers["openai"]
	pc.APIKey = "sk-from-file"
	cfg.Providers["openai"] = pc

	ApplyEnv(cfg)
	if cfg.Providers["openai"].APIKey != "sk-from-file" {
		t.Fatalf("file value should win, got %q", cfg.Providers["openai"].APIKey)
	}
}

func TestApplyEnv_BaseURLOverride(t *testing.T) {
	t.Setenv("MESSAGES_API_URL", "http://localhost:9999")
	cfg := Defaults()
	cfg.Source.BaseURL = ""
	ApplyEnv(cfg)
	if cfg.Source.BaseURL != "http://localhost:9999" {
		t.Fatalf("expected env base URL, got %q", cfg.Source.BaseURL)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "retriever.mode")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "lexical" {
		t.Fatalf("expected 'lexical', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "retriever.mode", "embedding"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Retriever.Mode != "embedding" {
		t.Fatalf("expected 'embedding', got %q", cfg.Retriever.Mode)
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "retriever.topK", "50"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Retriever.TopK != 50 {
		t.Fatalf("expected 50, got %d", cfg.Retriever.TopK)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "corpus.warmOnStart", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Corpus.WarmOnStart {
		t.Fatal("expected corpus.warmOnStart=false")
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"
	cfg.Providers["openai"] = ProviderConfig{
		Enabled: true,
		APIKey:  "sk-1234567890abcdefghijklmnop",
	}

	sanitized := Sanitize(cfg)

	if sanitized.Telegram.Token == cfg.Telegram.Token {
		t.Fatal("telegram token should be masked")
	}
	if sanitized.Providers["openai"].APIKey == cfg.Providers["openai"].APIKey {
		t.Fatal("API key should be masked")
	}
	// Verify original is untouched
	if cfg.Telegram.Token != "123456789:ABCdefGHIjklMNOpqrSTUvwxyz" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "short"
	sanitized := Sanitize(cfg)
	if sanitized.Telegram.Token != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Telegram.Token)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}

	// Check some known paths exist
	for _, expected := range []string{"source.baseUrl", "general.logLevel", "retriever.mode"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	input := `["hello", 123, "world", 456.0]`
	var list FlexStringList
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 items, got %d", len(list))
	}
	if list[0] != "hello" || list[2] != "world" {
		t.Fatal("string items mismatch")
	}
	if list[1] != "123" || list[3] != "456" {
		t.Fatalf("number conversion mismatch: %v", list)
	}
}

func TestFlexStringList_PureStrings(t *testing.T) {
	input := `["a", "b", "c"]`
	var list FlexStringList
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 3 || list[0] != "a" {
		t.Fatalf("unexpected: %v", list)
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	result := ExpandEnvVars(`{"apiKey": "${TEST_API_KEY}"}`)
	expected := `{"apiKey": "sk-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	// Ensure the var is unset
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_PORT", "9090")
	result := ExpandEnvVars(`{"port": "${MY_PORT:-8080}"}`)
	expected := `{"port": "9090"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_ASKBOT_SOURCE", "http://messages.test:9000")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"source": {
			"baseUrl": "${TEST_ASKBOT_SOURCE}"
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.BaseURL != "http://messages.test:9000" {
		t.Fatalf("expected substituted base URL, got %q", cfg.Source.BaseURL)
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if cfg == nil {
		t.Fatal("defaults returned nil")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Source.BaseURL == "" {
		t.Fatal("source base URL should not be empty")
	}
	if len(cfg.General.FailoverChain) == 0 {
		t.Fatal("failover chain should not be empty")
	}
	if cfg.General.FailoverChain[0] != "groq" {
		t.Fatalf("groq should lead the default chain, got %q", cfg.General.FailoverChain[0])
	}
}
