package factory

import (
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tradementor/llmcore/llm"
)

// The preset registry maps short gateway names to partial descriptors for the
// descriptor-driven custom adapter. Every entry here speaks the openai
// dialect; what varies is the base URL, the default model, and occasionally a
// capability flag. Overridable at runtime via LoadPresets.

var (
	presetMu sync.RWMutex
	presets  = map[string]*llm.Descriptor{
		"groq": {
			Name:              "groq",
			BaseURL:           "https://api.groq.com/openai",
			DefaultModel:      "llama-3.3-70b-versatile",
			SupportsStreaming: true,
		},
		"openrouter": {
			Name:              "openrouter",
			BaseURL:           "https://openrouter.ai/api",
			DefaultModel:      "openai/gpt-4o-mini",
			SupportsStreaming: true,
			SupportsVision:    true,
		},
		"moonshot": {
			Name:              "moonshot",
			BaseURL:           "https://api.moonshot.cn",
			DefaultModel:      "moonshot-v1-8k",
			SupportsStreaming: true,
		},
		"deepseek": {
			Name:              "deepseek",
			BaseURL:           "https://api.deepseek.com",
			DefaultModel:      "deepseek-chat",
			SupportsStreaming: true,
		},
		"together": {
			Name:              "together",
			BaseURL:           "https://api.together.xyz",
			DefaultModel:      "meta-llama/Llama-3.3-70B-Instruct-Turbo",
			SupportsStreaming: true,
		},
		"fireworks": {
			Name:              "fireworks",
			BaseURL:           "https://api.fireworks.ai/inference",
			DefaultModel:      "accounts/fireworks/models/llama-v3p1-70b-instruct",
			SupportsStreaming: true,
		},
		"mistral": {
			Name:               "mistral",
			BaseURL:            "https://api.mistral.ai",
			DefaultModel:       "mistral-large-latest",
			SupportsStreaming:  true,
			SupportsEmbeddings: true,
		},
		"perplexity": {
			Name:              "perplexity",
			BaseURL:           "https://api.perplexity.ai",
			ChatPath:          "/chat/completions",
			DefaultModel:      "sonar",
			SupportsStreaming: true,
		},
		"xai": {
			Name:              "xai",
			BaseURL:           "https://api.x.ai",
			DefaultModel:      "grok-2-latest",
			SupportsStreaming: true,
			SupportsVision:    true,
		},
		"zhipu": {
			Name:              "zhipu",
			BaseURL:           "https://open.bigmodel.cn/api/paas/v4",
			ChatPath:          "/chat/completions",
			EmbeddingsPath:    "/embeddings",
			DefaultModel:      "glm-4-flash",
			SupportsStreaming: true,
		},
		"dashscope": {
			Name:              "dashscope",
			BaseURL:           "https://dashscope.aliyuncs.com/compatible-mode",
			DefaultModel:      "qwen-plus",
			SupportsStreaming: true,
		},
		"siliconflow": {
			Name:               "siliconflow",
			BaseURL:            "https://api.siliconflow.cn",
			DefaultModel:       "Qwen/Qwen2.5-72B-Instruct",
			SupportsStreaming:  true,
			SupportsEmbeddings: true,
		},
		"lingyiwanwu": {
			Name:              "lingyiwanwu",
			BaseURL:           "https://api.lingyiwanwu.com",
			DefaultModel:      "yi-lightning",
			SupportsStreaming: true,
		},
		"baichuan": {
			Name:              "baichuan",
			BaseURL:           "https://api.baichuan-ai.com",
			DefaultModel:      "Baichuan4",
			SupportsStreaming: true,
		},
		"stepfun": {
			Name:              "stepfun",
			BaseURL:           "https://api.stepfun.com",
			DefaultModel:      "step-1-8k",
			SupportsStreaming: true,
		},
		"minimax": {
			Name:              "minimax",
			BaseURL:           "https://api.minimax.chat",
			ChatPath:          "/v1/text/chatcompletion_v2",
			DefaultModel:      "abab6.5s-chat",
			SupportsStreaming: true,
		},
		"hunyuan": {
			Name:              "hunyuan",
			BaseURL:           "https://api.hunyuan.cloud.tencent.com",
			DefaultModel:      "hunyuan-turbo",
			SupportsStreaming: true,
		},
		"doubao": {
			Name:              "doubao",
			BaseURL:           "https://ark.cn-beijing.volces.com/api/v3",
			ChatPath:          "/chat/completions",
			EmbeddingsPath:    "/embeddings",
			DefaultModel:      "doubao-pro-32k",
			SupportsStreaming: true,
		},
	}
)

// Presets returns the registered preset names, sorted.
func Presets() []string {
	presetMu.RLock()
	defer presetMu.RUnlock()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns a copy of one preset descriptor.
func Preset(name string) (*llm.Descriptor, error) {
	presetMu.RLock()
	defer presetMu.RUnlock()
	d, ok := presets[name]
	if !ok {
		return nil, unknownPresetError(name)
	}
	return d.Clone(), nil
}

func unknownPresetError(name string) error {
	presetMu.RLock()
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	presetMu.RUnlock()
	sort.Strings(names)
	return llm.NewConfigurationError("unknown preset %q, valid presets: %v", name, names)
}

// presetFile is the YAML overlay shape: a map of preset name to descriptor
// fields. Listed fields override; omitted fields keep the built-in value when
// the preset already exists.
type presetFile struct {
	Presets map[string]struct {
		BaseURL            string   `yaml:"base_url"`
		ChatPath           string   `yaml:"chat_path"`
		EmbeddingsPath     string   `yaml:"embeddings_path"`
		ModelsPath         string   `yaml:"models_path"`
		DefaultModel       string   `yaml:"default_model"`
		AvailableModels    []string `yaml:"available_models"`
		ContentPath        string   `yaml:"content_path"`
		SupportsStreaming  *bool    `yaml:"supports_streaming"`
		SupportsVision     *bool    `yaml:"supports_vision"`
		SupportsEmbeddings *bool    `yaml:"supports_embeddings"`
		RequestsPerMinute  int      `yaml:"requests_per_minute"`
		TokensPerMinute    int      `yaml:"tokens_per_minute"`
	} `yaml:"presets"`
}

// LoadPresets merges a YAML overlay into the registry, adding new presets and
// overriding fields of existing ones.
func LoadPresets(data []byte) error {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse preset overlay: %w", err)
	}

	presetMu.Lock()
	defer presetMu.Unlock()
	for name, entry := range file.Presets {
		d, ok := presets[name]
		if !ok {
			d = &llm.Descriptor{Name: name}
			presets[name] = d
		}
		if entry.BaseURL != "" {
			d.BaseURL = entry.BaseURL
		}
		if entry.ChatPath != "" {
			d.ChatPath = entry.ChatPath
		}
		if entry.EmbeddingsPath != "" {
			d.EmbeddingsPath = entry.EmbeddingsPath
		}
		if entry.ModelsPath != "" {
			d.ModelsPath = entry.ModelsPath
		}
		if entry.DefaultModel != "" {
			d.DefaultModel = entry.DefaultModel
		}
		if len(entry.AvailableModels) > 0 {
			d.AvailableModels = entry.AvailableModels
		}
		if entry.ContentPath != "" {
			d.ResponseMapping.Content = entry.ContentPath
		}
		if entry.SupportsStreaming != nil {
			d.SupportsStreaming = *entry.SupportsStreaming
		}
		if entry.SupportsVision != nil {
			d.SupportsVision = *entry.SupportsVision
		}
		if entry.SupportsEmbeddings != nil {
			d.SupportsEmbeddings = *entry.SupportsEmbeddings
		}
		if entry.RequestsPerMinute > 0 {
			d.RequestsPerMinute = entry.RequestsPerMinute
		}
		if entry.TokensPerMinute > 0 {
			d.TokensPerMinute = entry.TokensPerMinute
		}
	}
	return nil
}
