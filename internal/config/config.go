package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/sashabaranov/go-openai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	OpenAI    OpenAIConfig
	Concierge ConciergeConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	openAI, err := loadOpenAIConfig()
	if err != nil {
		return nil, err
	}

	concierge, err := loadConciergeConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, OpenAI: openAI, Concierge: concierge}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var timeout *time.Duration
	if c.Timeout > 0 {
		val := c.Timeout
		timeout = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
		Timeout:     timeout,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout := 60 * time.Second
	if seconds, err := parseOptionalIntEnv("ARK_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if seconds != nil && *seconds > 0 {
		timeout = time.Duration(*seconds) * time.Second
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

// OpenAIConfig 描述语音转写、语音合成与向量化所用的 OpenAI 接口配置。
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	STTModel       string
	STTLanguage    string
	TTSModel       string
	TTSVoice       string
	TTSFormat      string
	TTSSpeed       float64
	EmbeddingModel string
	Timeout        time.Duration
}

// Enabled 表示是否提供了 API Key。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// NewClient 使用配置创建 OpenAI 客户端。
func (c OpenAIConfig) NewClient() (*openai.Client, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	clientCfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		clientCfg.BaseURL = c.BaseURL
	}
	if c.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

func loadOpenAIConfig() (OpenAIConfig, error) {
	speed, err := parseOptionalFloatEnv("OPENAI_TTS_SPEED")
	if err != nil {
		return OpenAIConfig{}, err
	}
	ttsSpeed := 1.0
	if speed != nil {
		if *speed < 0.25 || *speed > 4.0 {
			return OpenAIConfig{}, fmt.Errorf("invalid OPENAI_TTS_SPEED value %v: must be within [0.25, 4.0]", *speed)
		}
		ttsSpeed = *speed
	}

	timeout := 30 * time.Second
	if seconds, err := parseOptionalIntEnv("OPENAI_TIMEOUT_SECONDS"); err != nil {
		return OpenAIConfig{}, err
	} else if seconds != nil && *seconds > 0 {
		timeout = time.Duration(*seconds) * time.Second
	}

	return OpenAIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:        getEnvOrDefault("OPENAI_BASE_URL", ""),
		STTModel:       getEnvOrDefault("OPENAI_STT_MODEL", "whisper-1"),
		STTLanguage:    getEnvOrDefault("OPENAI_STT_LANGUAGE", "en"),
		TTSModel:       getEnvOrDefault("OPENAI_TTS_MODEL", "tts-1"),
		TTSVoice:       getEnvOrDefault("OPENAI_TTS_VOICE", "alloy"),
		TTSFormat:      getEnvOrDefault("OPENAI_TTS_FORMAT", "mp3"),
		TTSSpeed:       ttsSpeed,
		EmbeddingModel: getEnvOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		Timeout:        timeout,
	}, nil
}

// ConciergeConfig 描述路由与身份校验相关的运营配置。
type ConciergeConfig struct {
	MaxAttempts            int
	ValidationInstructions string
	GeneralSystemMessage   string
	PersonalSystemMessage  string
	RouterFallbackReply    string
	AgentModel             string

	RetrievalTopK     int
	ChunkSize         int
	ChunkOverlap      int
	RedactLogs        bool
	TurnTimeout       time.Duration
	ProfilePath       string
	UsersCSV          string
	TransactionsCSV   string
	GeneralDocuments  []string
	PersonalDocuments []string
}

func loadConciergeConfig() (ConciergeConfig, error) {
	cfg := ConciergeConfig{
		MaxAttempts:   3,
		RetrievalTopK: 5,
		ChunkSize:     100,
		ChunkOverlap:  50,
		TurnTimeout:   2 * time.Minute,
		ProfilePath:   strings.TrimSpace(os.Getenv("CONCIERGE_PROFILE")),
	}

	// 先应用配置文件，再由环境变量覆盖。
	if cfg.ProfilePath != "" {
		profile, err := LoadProfile(cfg.ProfilePath)
		if err != nil {
			return ConciergeConfig{}, err
		}
		profile.apply(&cfg)
	}

	if err := overrideInt(&cfg.MaxAttempts, "VALIDATION_MAX_ATTEMPTS"); err != nil {
		return ConciergeConfig{}, err
	}
	if err := overrideInt(&cfg.RetrievalTopK, "RETRIEVAL_TOP_K"); err != nil {
		return ConciergeConfig{}, err
	}
	if err := overrideInt(&cfg.ChunkSize, "RETRIEVAL_CHUNK_SIZE"); err != nil {
		return ConciergeConfig{}, err
	}
	if err := overrideInt(&cfg.ChunkOverlap, "RETRIEVAL_CHUNK_OVERLAP"); err != nil {
		return ConciergeConfig{}, err
	}

	overrideString(&cfg.ValidationInstructions, "VALIDATION_INSTRUCTIONS")
	overrideString(&cfg.GeneralSystemMessage, "GENERAL_AGENT_SYSTEM_MESSAGE")
	overrideString(&cfg.PersonalSystemMessage, "PERSONAL_AGENT_SYSTEM_MESSAGE")
	overrideString(&cfg.RouterFallbackReply, "ROUTER_FALLBACK_REPLY")
	overrideString(&cfg.AgentModel, "AGENT_MODEL")

	redact, err := parseBoolEnv("LOG_REDACT_PII", true)
	if err != nil {
		return ConciergeConfig{}, err
	}
	cfg.RedactLogs = redact

	if seconds, err := parseOptionalIntEnv("TURN_TIMEOUT_SECONDS"); err != nil {
		return ConciergeConfig{}, err
	} else if seconds != nil && *seconds > 0 {
		cfg.TurnTimeout = time.Duration(*seconds) * time.Second
	}

	cfg.UsersCSV = getEnvOrDefault("CONCIERGE_USERS_CSV", cfg.UsersCSV)
	cfg.TransactionsCSV = getEnvOrDefault("CONCIERGE_TRANSACTIONS_CSV", cfg.TransactionsCSV)
	if docs := splitList(os.Getenv("CONCIERGE_GENERAL_DOCS")); len(docs) > 0 {
		cfg.GeneralDocuments = docs
	}
	if docs := splitList(os.Getenv("CONCIERGE_PERSONAL_DOCS")); len(docs) > 0 {
		cfg.PersonalDocuments = docs
	}

	if err := cfg.Validate(); err != nil {
		return ConciergeConfig{}, err
	}
	return cfg, nil
}

// Validate 检查数值配置的取值范围。
func (c ConciergeConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("invalid VALIDATION_MAX_ATTEMPTS value %d: must be >= 1", c.MaxAttempts)
	}
	if c.RetrievalTopK < 1 {
		return fmt.Errorf("invalid RETRIEVAL_TOP_K value %d: must be >= 1", c.RetrievalTopK)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("invalid RETRIEVAL_CHUNK_SIZE value %d: must be >= 1", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("invalid RETRIEVAL_CHUNK_OVERLAP value %d: must be within [0, %d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

func overrideInt(target *int, key string) error {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return err
	}
	if val != nil {
		*target = *val
	}
	return nil
}

func overrideString(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
