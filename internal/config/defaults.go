package config

// DefaultSourceURL is the member-message archive askbot answers questions
// about. Override with source.baseUrl or MESSAGES_API_URL.
const DefaultSourceURL = "https://november7-730026606190.europe-west1.run.app"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:         "info",
			LogFormat:        "text",
			FailoverChain:    []string{"groq", "claude", "openai", "gemini", "ollama"},
			MaxQuestionChars: 2000,
		},
		Source: SourceConfig{
			BaseURL:                DefaultSourceURL,
			PageSize:               100,
			MaxPages:               1000,
			TimeoutSeconds:         30,
			RetryAttempts:          3,
			RetryBackoffMS:         500,
			MaxConsecutiveFailures: 5,
		},
		Corpus: CorpusConfig{
			TTLMinutes:             5,
			WarmOnStart:            true,
			RefreshIntervalMinutes: 0,
		},
		Retriever: RetrieverConfig{
			Mode:          "lexical",
			TopK:          30,
			MinScore:      0.2,
			MinSimilarity: 0.7,
		},
		Providers: map[string]ProviderConfig{
			"groq": {
				Enabled:   true,
				APIBase:   "https://api.groq.com/openai/v1",
				Model:     "llama-3.3-70b-versatile",
				MaxTokens: 1024,
			},
			"claude": {
				Enabled:   true,
				MaxTokens: 2048,
			},
			"openai": {
				Enabled:   true,
				APIBase:   "https://api.openai.com/v1",
				Model:     "gpt-3.5-turbo",
				MaxTokens: 500,
			},
			"gemini": {
				Enabled:        true,
				Model:          "gemini-1.5-flash-latest",
				MaxTokens:      1024,
				EmbeddingModel: "text-embedding-004",
			},
			"ollama": {
				Enabled: false,
				APIBase: "http://localhost:11434",
				Model:   "llama3.1:8b",
			},
		},
		Synth: SynthConfig{
			Temperature:  0.7,
			ContextChars: 20000,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
		Telegram: TelegramConfig{
			Enabled:   false,
			ParseMode: "Markdown",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
