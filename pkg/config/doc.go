// Package config provides configuration management for Prism.
//
// Configuration is read from YAML, completed with defaults, overridden from
// PRISM_* environment variables and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("prism.yaml")
//
// # Environment Variable Overrides
//
// Variables follow the naming convention PRISM_SECTION_FIELD:
//
//   - PRISM_PROXY_LISTEN_ADDRESS overrides proxy.listen_address
//   - PRISM_PROVIDERS_OPENAI_API_KEY overrides providers.openai.api_key
//   - PRISM_PROVIDERS_CLAUDE_WEB_BASE_URL overrides providers.claude-web.base_url
//   - PRISM_ROUTING_STRATEGY overrides routing.strategy
//
// Provider overrides only apply to providers present in the file.
//
// # Providers
//
// Each entry under providers becomes a registry.Descriptor (see
// Config.Descriptors). kind and dialect are inferred when omitted:
//
//	providers:
//	  openai:
//	    base_url: "https://api.openai.com/v1"
//	    models: ["gpt-4*", "gpt-3.5-turbo"]
//	  claude-web:
//	    base_url: "wss://bridge.internal/claude"
//	    weight: 2
//	  local:
//	    client: echo
//
//	routing:
//	  strategy: health-priority
//	  secondary_strategy: lowest-latency
//	  max_attempts: 3
//
//	audit:
//	  driver: sqlite
//	  path: data/audit.db
//	  retention_days: 30
//
// # Hot reload
//
// A Watcher reloads the file when it changes and passes the new
// configuration to a callback, which the server uses to sync the provider
// registry. Invalid files are logged and ignored.
//
// # Singleton
//
// Initialize, GetConfig and ReloadConfig manage a process-wide instance for
// the CLI. Library code takes a *Config explicitly.
package config
