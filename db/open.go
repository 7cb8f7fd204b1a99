package db

import "fmt"

// Backend names accepted in node configuration.
const (
	BackendLevelDB = "leveldb"
	BackendRocksDB = "rocksdb"
	BackendBoltDB  = "boltdb"
	BackendMemory  = "memory"
)

// Open creates the provider named by backend. path is the data directory
// (leveldb, rocksdb) or file (boltdb); the memory backend ignores it.
func Open(backend, path string) (DatabaseProvider, error) {
	switch backend {
	case BackendLevelDB:
		return NewLevelDBProvider(path)
	case BackendRocksDB:
		return NewRocksDBProvider(path)
	case BackendBoltDB:
		return NewBoltDBProvider(path)
	case BackendMemory:
		return NewMemDBProvider(), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", backend)
	}
}
