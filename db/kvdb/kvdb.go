package kvdb

const (
	SettingsBucket = "settings"
	RunsBucket     = "runs"
)

type DB interface {
	Set(bucket string, key string, value string) error
	// SetMany writes every key of values in one transaction.
	SetMany(bucket string, values map[string]string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAll(bucket string) (map[string]string, error)
	Close() error
}
