package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir           string
	Port                 string
	WorkerCount          int
	DefaultFetchInterval int // seconds, 0 disables the process-wide default schedule
	FetchTimeout         int // seconds

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
