package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile 是运营人员维护的 YAML 配置文件，字段与侧边栏设置一一对应。
type Profile struct {
	GeneralSystemMessage   string   `yaml:"general_system_message"`
	PersonalSystemMessage  string   `yaml:"personal_system_message"`
	ValidationInstructions string   `yaml:"validation_instructions"`
	MaxAttempts            int      `yaml:"max_attempts"`
	RouterFallbackReply    string   `yaml:"router_fallback_reply"`
	AgentModel             string   `yaml:"agent_model"`
	UsersCSV               string   `yaml:"users_csv"`
	TransactionsCSV        string   `yaml:"transactions_csv"`
	GeneralDocuments       []string `yaml:"general_documents"`
	PersonalDocuments      []string `yaml:"personal_documents"`
}

// LoadProfile 读取并解析 YAML 配置文件。
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &profile, nil
}

func (p *Profile) apply(cfg *ConciergeConfig) {
	if p == nil {
		return
	}
	if v := strings.TrimSpace(p.GeneralSystemMessage); v != "" {
		cfg.GeneralSystemMessage = v
	}
	if v := strings.TrimSpace(p.PersonalSystemMessage); v != "" {
		cfg.PersonalSystemMessage = v
	}
	if v := strings.TrimSpace(p.ValidationInstructions); v != "" {
		cfg.ValidationInstructions = v
	}
	if v := strings.TrimSpace(p.RouterFallbackReply); v != "" {
		cfg.RouterFallbackReply = v
	}
	if v := strings.TrimSpace(p.AgentModel); v != "" {
		cfg.AgentModel = v
	}
	if p.MaxAttempts != 0 {
		cfg.MaxAttempts = p.MaxAttempts
	}
	if v := strings.TrimSpace(p.UsersCSV); v != "" {
		cfg.UsersCSV = v
	}
	if v := strings.TrimSpace(p.TransactionsCSV); v != "" {
		cfg.TransactionsCSV = v
	}
	if len(p.GeneralDocuments) > 0 {
		cfg.GeneralDocuments = append([]string(nil), p.GeneralDocuments...)
	}
	if len(p.PersonalDocuments) > 0 {
		cfg.PersonalDocuments = append([]string(nil), p.PersonalDocuments...)
	}
}
