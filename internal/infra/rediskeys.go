package infra

const (
	// RedisNamespace Базовый префикс для каналов проекта в Redis
	RedisNamespace = "latch_escrow"
)

// Ключи снимка состояния. Имена совпадают с ключами локального хранилища клиента,
// чтобы снимок можно было перенести как есть.
const (
	RedisKeyVaults   = RedisNamespace + "_vaults_v1"
	RedisKeyActivity = RedisNamespace + "_activity_v1"
	RedisKeyRole     = RedisNamespace + "_role_v1"
	RedisKeySelected = RedisNamespace + "_selected_v1"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanVaultEvents — доменные события контроллера (разрешенные и отклоненные попытки)
	RedisChanVaultEvents = RedisNamespace + ":vault-events"
)
