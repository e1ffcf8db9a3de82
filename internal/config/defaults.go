package config

const (
	defaultConfigPath            = "~/.config/weft/config.toml"
	defaultStateDir              = "~/.local/share/weft"
	defaultTempDir               = "~/.local/share/weft/tmp"
	defaultWorkDir               = "~/.config/weft/definitions"
	defaultLogDir                = "~/.local/share/weft/logs"
	defaultContentDir            = "~/.local/share/weft/content"
	defaultQueueSpec             = "default,4"
	defaultPollIntervalMillis    = 1
	defaultMaxPollIntervalMillis = 3000
	defaultErrorRetryInterval    = 10
	defaultHeartbeatInterval     = 15
	defaultLeaseTimeout          = 120
	defaultDrainTimeout          = 300
	defaultRetryBackoff          = 30
	defaultMaxRetryBackoff       = 1800
	defaultMaxAttempts           = 3
	defaultTransitionRetries     = 3
	defaultErrorState            = "failure"
	defaultBackendKind           = BackendLocal
	defaultBackendTimeoutSeconds = 30
	defaultStorageKind           = StorageFS
	defaultStorageRegion         = "us-east-1"
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMEmbeddingURL       = "https://openrouter.ai/api/v1/embeddings"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMEmbeddingModel     = "openai/text-embedding-3-small"
	defaultLLMReferer            = "https://github.com/weft-dev/weft"
	defaultLLMTitle              = "weft"
	defaultLLMTimeoutSeconds     = 60
	defaultVectorTable           = "content_embeddings"
	defaultVectorDimensions      = 1536
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultMaxThumbnails         = 10
	defaultThumbnailWidth        = 800
	defaultMinFreeGiB            = 2
	defaultMetricsListen         = "127.0.0.1:9000"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Backend kinds.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Storage kinds.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			TempDir:    defaultTempDir,
			WorkDir:    defaultWorkDir,
			LogDir:     defaultLogDir,
			ContentDir: defaultContentDir,
		},
		Queues: Queues{
			Spec: defaultQueueSpec,
		},
		Workflow: Workflow{
			PollIntervalMillis:    defaultPollIntervalMillis,
			MaxPollIntervalMillis: defaultMaxPollIntervalMillis,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			HeartbeatInterval:     defaultHeartbeatInterval,
			LeaseTimeout:          defaultLeaseTimeout,
			DrainTimeout:          defaultDrainTimeout,
			RetryBackoff:          defaultRetryBackoff,
			MaxRetryBackoff:       defaultMaxRetryBackoff,
			MaxAttempts:           defaultMaxAttempts,
			ErrorState:            defaultErrorState,
			TransitionRetries:     defaultTransitionRetries,
		},
		Backend: Backend{
			Kind:           defaultBackendKind,
			TimeoutSeconds: defaultBackendTimeoutSeconds,
		},
		Storage: Storage{
			Kind:   defaultStorageKind,
			Region: defaultStorageRegion,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			EmbeddingURL:   defaultLLMEmbeddingURL,
			Model:          defaultLLMModel,
			EmbeddingModel: defaultLLMEmbeddingModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Vector: Vector{
			Table:      defaultVectorTable,
			Dimensions: defaultVectorDimensions,
		},
		Media: Media{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			MaxThumbnails:  defaultMaxThumbnails,
			ThumbnailWidth: defaultThumbnailWidth,
			MinFreeGiB:     defaultMinFreeGiB,
		},
		Metrics: Metrics{
			Listen: defaultMetricsListen,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
