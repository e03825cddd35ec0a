package am

// Config represents the featsmith configuration
type Config struct {
	Model    ModelConfig    `mapstructure:"model" toml:"model"`
	Generate GenerateConfig `mapstructure:"generate" toml:"generate"`
	Package  PackageConfig  `mapstructure:"package" toml:"package"`
	Compile  CompileConfig  `mapstructure:"compile" toml:"compile"`
	Execute  ExecuteConfig  `mapstructure:"execute" toml:"execute"`
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics" toml:"metrics"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

// ModelConfig configures the generative model client
type ModelConfig struct {
	Provider          string  `mapstructure:"provider" toml:"provider"`                       // openai, openrouter, local
	BaseURL           string  `mapstructure:"base_url" toml:"base_url"`                       // "" = provider default
	APIKey            string  `mapstructure:"api_key" toml:"api_key"`                         // prefer FEATSMITH_MODEL_API_KEY
	APIKeyFile        string  `mapstructure:"api_key_file" toml:"api_key_file"`               // read when api_key is empty
	Model             string  `mapstructure:"model" toml:"model"`                             // model identifier
	SystemPrompt      string  `mapstructure:"system_prompt" toml:"system_prompt"`             // "" = embedded system template
	Temperature       float64 `mapstructure:"temperature" toml:"temperature"`                 // sampling temperature
	MaxTokens         int     `mapstructure:"max_tokens" toml:"max_tokens"`                   // initial token budget, halved on oversize
	MaxAttempts       int     `mapstructure:"max_attempts" toml:"max_attempts"`               // attempts before giving up
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" toml:"retry_delay_seconds"` // fixed delay between attempts
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`         // per-request HTTP timeout
	RequestsPerMinute int     `mapstructure:"requests_per_minute" toml:"requests_per_minute"` // 0 = unlimited
	DailyBudgetUSD    float64 `mapstructure:"daily_budget_usd" toml:"daily_budget_usd"`       // sliding 24h spend limit; 0 = unlimited
	MonthlyBudgetUSD  float64 `mapstructure:"monthly_budget_usd" toml:"monthly_budget_usd"`   // sliding 30d spend limit; 0 = unlimited
}

// GenerateConfig configures the generation stage
type GenerateConfig struct {
	OutputDir string   `mapstructure:"output_dir" toml:"output_dir"`
	Instances int      `mapstructure:"instances" toml:"instances"` // generations per feature
	Features  []string `mapstructure:"features" toml:"features"`   // empty = whole catalog
	CodeKey   string   `mapstructure:"code_key" toml:"code_key"`   // JSON key carrying the generated code
	PromptDir string   `mapstructure:"prompt_dir" toml:"prompt_dir"`
}

// PackageConfig describes the on-disk unit layout
type PackageConfig struct {
	Name       string `mapstructure:"name" toml:"name"`
	Version    string `mapstructure:"version" toml:"version"`
	Manifest   string `mapstructure:"manifest" toml:"manifest"`
	SourcesDir string `mapstructure:"sources_dir" toml:"sources_dir"`
	Extension  string `mapstructure:"extension" toml:"extension"`
	FilePrefix string `mapstructure:"file_prefix" toml:"file_prefix"`
}

// CompileConfig configures the compile check and repair loop
type CompileConfig struct {
	Command        string `mapstructure:"command" toml:"command"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	Repair         bool   `mapstructure:"repair" toml:"repair"`
	MaxRepairs     int    `mapstructure:"max_repairs" toml:"max_repairs"`
	Workers        int    `mapstructure:"workers" toml:"workers"`
}

// ExecuteConfig configures the execution check
type ExecuteConfig struct {
	Command        string `mapstructure:"command" toml:"command"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	Workers        int    `mapstructure:"workers" toml:"workers"`
}

// DatabaseConfig configures the SQLite run ledger
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"` // "" disables the ledger
}

// MetricsConfig configures Prometheus export
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" toml:"textfile"` // node_exporter textfile; "" disables
}

// LogConfig configures console log output
type LogConfig struct {
	Theme string `mapstructure:"theme" toml:"theme"` // everforest, gruvbox
}
