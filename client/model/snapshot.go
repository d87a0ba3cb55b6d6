package model

// Snapshot is what the rendering layer consumes.
type Snapshot struct {
	SelfID      string          `json:"self_id"`
	Session     string          `json:"session"`
	CurrentRoom string          `json:"current_room,omitempty"`
	PendingRoom string          `json:"pending_room,omitempty"`
	History     []RenderedEntry `json:"history"`
	Readiness   ReadinessView   `json:"readiness"`
	FileSync    string          `json:"file_sync"`
	CanPlay     bool            `json:"can_play"`
}

type RenderedEntry struct {
	HistoryEntry
	Index          uint64 `json:"index"`
	IsContinuation bool   `json:"is_continuation"`
	IsGroupEnd     bool   `json:"is_group_end"`
	IsOwn          bool   `json:"is_own"`
}

type ReadinessView struct {
	Local    *FileDescriptor           `json:"local,omitempty"`
	Remote   map[string]FileDescriptor `json:"remote"`
	AllReady bool                      `json:"all_ready"`
	Advisory bool                      `json:"advisory"` // last readiness-changed value from the server
}
