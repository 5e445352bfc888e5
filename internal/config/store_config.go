package config

type StoreConfig interface {
	GetStoreBackend() string
	GetStorePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisNamespace() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetStoreBackend is one of memory, file, redis or sqlite.
func (Store) GetStoreBackend() string {
	return GetEnv("STORE_BACKEND", "file")
}

// GetStorePath is the directory (file) or database file (sqlite) holding app sessions.
func (Store) GetStorePath() string {
	return GetEnv("STORE_PATH", GetEnv(folderEnvVar, "./data")+"/sessions")
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Store) GetRedisDB() int {
	return GetIntEnv("REDIS_DB", 0)
}

func (Store) GetRedisNamespace() string {
	return GetEnv("REDIS_NAMESPACE", "applock")
}
