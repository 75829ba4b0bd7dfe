package domain

import "time"

// AuditLog records who did what to which game.
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	Principal string                 `db:"principal" json:"principal"`
	Game      string                 `db:"game" json:"game,omitempty"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	IP        string                 `db:"ip" json:"ip,omitempty"`
	UserAgent string                 `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

const (
	AuditCategoryAuth   = "auth"
	AuditCategoryGame   = "game"
	AuditCategoryOracle = "oracle"
)

const (
	AuditActionLogin = "login"

	AuditActionDeploy            = "deploy"
	AuditActionSelectMode        = "select_mode"
	AuditActionJoin              = "join"
	AuditActionPlay              = "play"
	AuditActionRequestDecryption = "request_decryption"
	AuditActionFulfill           = "fulfill"
	AuditActionEndGame           = "end_game"
	AuditActionUserDecrypt       = "user_decrypt"
)
