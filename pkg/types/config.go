package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout bounds every remote call made by the stage.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "pubmed-vector/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// RetryConfig configures the retry policy applied around remote calls.
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay is the first backoff delay; it doubles on each retry (default 1s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c RetryConfig) WithDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return c
}

// FetchConfig holds settings for downloading PubMed XML batches from the
// NCBI E-utilities API.
type FetchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`
	Retry      RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`

	// Query is the PubMed search term (e.g. "rare disease").
	Query string `json:"query" yaml:"query" mapstructure:"query"`

	// RelDays restricts results to the last N days by publication date.
	// Zero disables the relative window.
	RelDays int `json:"rel_days" yaml:"rel_days" mapstructure:"rel_days"`

	// MinDate and MaxDate bound the publication date ("2015", "2025/06/30").
	MinDate string `json:"min_date,omitempty" yaml:"min_date,omitempty" mapstructure:"min_date"`
	MaxDate string `json:"max_date,omitempty" yaml:"max_date,omitempty" mapstructure:"max_date"`

	// PageSize is the number of IDs requested per esearch page (default 100).
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`

	// FetchBatchSize is the number of IDs per efetch call and per XML batch
	// file (default and maximum 100).
	FetchBatchSize int `json:"fetch_batch_size" yaml:"fetch_batch_size" mapstructure:"fetch_batch_size"`

	// APIKey is the optional NCBI API key; it raises the rate limit to 10 req/s.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Email identifies the caller to NCBI.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// OutputDir receives one XML file per fetched batch (default "xml_batches").
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// MaxFetchBatchSize is the largest ID list sent in one efetch call.
const MaxFetchBatchSize = 100

// WithDefaults returns c with zero fields replaced by defaults.
func (c FetchConfig) WithDefaults() FetchConfig {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "pubmed-vector/0.1"
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.FetchBatchSize <= 0 || c.FetchBatchSize > MaxFetchBatchSize {
		c.FetchBatchSize = MaxFetchBatchSize
	}
	if c.OutputDir == "" {
		c.OutputDir = "xml_batches"
	}
	c.Retry = c.Retry.WithDefaults()
	return c
}

// ExtractConfig holds settings for the XML-to-JSON extraction stage.
type ExtractConfig struct {
	// InputDir contains PubMed XML batch files (default "xml_batches").
	InputDir string `json:"input_dir" yaml:"input_dir" mapstructure:"input_dir"`

	// OutputDir receives one JSON record file per batch (default "json_batches").
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c ExtractConfig) WithDefaults() ExtractConfig {
	if c.InputDir == "" {
		c.InputDir = "xml_batches"
	}
	if c.OutputDir == "" {
		c.OutputDir = "json_batches"
	}
	return c
}

// FailurePolicy selects what the embedder does with a record whose
// embedding could not be produced.
type FailurePolicy string

const (
	// FailDrop logs and drops the record. This is the default.
	FailDrop FailurePolicy = "drop"

	// FailZeroVector keeps the record with a zero-vector placeholder and
	// marks it Degraded.
	FailZeroVector FailurePolicy = "zero-vector"
)

// EmbeddingConfig holds settings for the embedding client and batch embedder.
type EmbeddingConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`
	Retry      RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`

	// URL is the OpenAI-compatible endpoint, either a base URL
	// ("http://host:8080/v1") or the full embeddings URL.
	URL string `json:"url" yaml:"url" mapstructure:"url"`

	// Model is sent as the "model" field of each request.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is sent as a bearer token when set.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Dimension is the expected vector length (default EmbeddingDim).
	Dimension int `json:"dimension" yaml:"dimension" mapstructure:"dimension"`

	// Delay is the minimum spacing between embedding calls. Zero disables
	// rate limiting.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`

	// Workers is the number of batches embedded concurrently (default 1).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// OnFailure selects the per-record failure policy (default "drop").
	OnFailure FailurePolicy `json:"on_failure" yaml:"on_failure" mapstructure:"on_failure"`

	// CacheDir enables the on-disk content-hash embedding cache when set.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty" mapstructure:"cache_dir"`

	// InputDir contains extracted JSON batches (default "json_batches").
	InputDir string `json:"input_dir" yaml:"input_dir" mapstructure:"input_dir"`

	// OutputDir receives embedded JSON batches (default "json_embedded").
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c EmbeddingConfig) WithDefaults() EmbeddingConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "pubmed-vector/0.1"
	}
	if c.Dimension <= 0 {
		c.Dimension = EmbeddingDim
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.OnFailure == "" {
		c.OnFailure = FailDrop
	}
	if c.InputDir == "" {
		c.InputDir = "json_batches"
	}
	if c.OutputDir == "" {
		c.OutputDir = "json_embedded"
	}
	c.Retry = c.Retry.WithDefaults()
	return c
}

// StoreBackend identifies the vector store implementation.
type StoreBackend string

const (
	BackendMilvus StoreBackend = "milvus"
	BackendSQLite StoreBackend = "sqlite"
)

// StoreConfig holds settings for the vector store connection and the load stage.
type StoreConfig struct {
	// Backend selects milvus or sqlite (default milvus).
	Backend StoreBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Address is the Milvus host:port (default "localhost:19530"). A
	// "http://" or "tcp://" scheme prefix is stripped.
	Address string `json:"address" yaml:"address" mapstructure:"address"`

	Username string `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	Database string `json:"database,omitempty" yaml:"database,omitempty" mapstructure:"database"`

	// Collection is the collection (or table) name (default "pubmed_rare_disease_db").
	Collection string `json:"collection" yaml:"collection" mapstructure:"collection"`

	// Dimension is the embedding field length (default EmbeddingDim).
	Dimension int `json:"dimension" yaml:"dimension" mapstructure:"dimension"`

	// NList is the IVF_FLAT partition count (default 128).
	NList int `json:"nlist" yaml:"nlist" mapstructure:"nlist"`

	// NProbe is the number of partitions probed per search (default 16).
	NProbe int `json:"nprobe" yaml:"nprobe" mapstructure:"nprobe"`

	// Timeout bounds every store call (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Path is the SQLite database file (default "pubmed-vector.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// InsertBatchSize caps the records sent per insert call (default 500).
	InsertBatchSize int `json:"insert_batch_size" yaml:"insert_batch_size" mapstructure:"insert_batch_size"`

	// InputDir contains embedded JSON batches for the load stage (default "json_embedded").
	InputDir string `json:"input_dir" yaml:"input_dir" mapstructure:"input_dir"`
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c StoreConfig) WithDefaults() StoreConfig {
	if c.Backend == "" {
		c.Backend = BackendMilvus
	}
	if c.Address == "" {
		c.Address = "localhost:19530"
	}
	if c.Collection == "" {
		c.Collection = "pubmed_rare_disease_db"
	}
	if c.Dimension <= 0 {
		c.Dimension = EmbeddingDim
	}
	if c.NList <= 0 {
		c.NList = 128
	}
	if c.NProbe <= 0 {
		c.NProbe = 16
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Path == "" {
		c.Path = "pubmed-vector.db"
	}
	if c.InsertBatchSize <= 0 {
		c.InsertBatchSize = 500
	}
	if c.InputDir == "" {
		c.InputDir = "json_embedded"
	}
	return c
}

// ToolConfig holds settings for the tool server.
type ToolConfig struct {
	// Addr is the listen address (default ":8035").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// TopK is the default number of hits (default 5).
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// Score is the default minimum similarity (default 0.6).
	Score float64 `json:"score" yaml:"score" mapstructure:"score"`
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c ToolConfig) WithDefaults() ToolConfig {
	if c.Addr == "" {
		c.Addr = ":8035"
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.Score == 0 {
		c.Score = 0.6
	}
	return c
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Fetch     FetchConfig     `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Extract   ExtractConfig   `json:"extract" yaml:"extract" mapstructure:"extract"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Store     StoreConfig     `json:"store" yaml:"store" mapstructure:"store"`
	Tool      ToolConfig      `json:"tool" yaml:"tool" mapstructure:"tool"`
}

// WithDefaults applies each section's defaults.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	c.Fetch = c.Fetch.WithDefaults()
	c.Extract = c.Extract.WithDefaults()
	c.Embedding = c.Embedding.WithDefaults()
	c.Store = c.Store.WithDefaults()
	c.Tool = c.Tool.WithDefaults()
	return c
}
