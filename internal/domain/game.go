package domain

import "time"

// GameSnapshot is the stored and transported view of one game instance.
// Addresses and handles are 0x-prefixed hex.
type GameSnapshot struct {
	Address         string    `db:"address" json:"address"`
	Owner           string    `db:"owner" json:"owner"`
	Mode            string    `db:"mode" json:"mode"`
	Players         []string  `db:"players" json:"players"`
	EncryptedMoves  []string  `db:"encrypted_moves" json:"encrypted_moves"`
	HasPlayed       []bool    `db:"has_played" json:"has_played"`
	DecryptionState string    `db:"decryption_state" json:"decryption_state"`
	RequestID       *string   `db:"request_id" json:"request_id,omitempty"`
	ClearMoves      []int64   `db:"clear_moves" json:"clear_moves,omitempty"`
	Result          string    `db:"result" json:"result"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// EventType names a game transition pushed to subscribers.
type EventType string

const (
	EventModeSelected        EventType = "mode_selected"
	EventPlayerJoined        EventType = "player_joined"
	EventMovePlayed          EventType = "move_played"
	EventDecryptionRequested EventType = "decryption_requested"
	EventDecryptionFailed    EventType = "decryption_failed"
	EventDecrypted           EventType = "decrypted"
	EventResolved            EventType = "resolved"
)

// GameEvent is one transition of a game.
type GameEvent struct {
	Type      EventType `json:"type"`
	Game      string    `json:"game"`
	Actor     string    `json:"actor,omitempty"`
	Slot      *int      `json:"slot,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Result    string    `json:"result,omitempty"`
	At        time.Time `json:"at"`
}
