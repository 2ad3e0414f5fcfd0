package domain

type SyncConfig struct {
	EndpointURL string `json:"endpointUrl"`
	ShareURL    string `json:"shareUrl"`
	AutoSync    bool   `json:"autoSync"`
}

type SyncStatus string

const (
	SyncIdle    SyncStatus = "IDLE"
	SyncPushing SyncStatus = "PUSHING"
	SyncPulling SyncStatus = "PULLING"
)

func (s SyncStatus) InFlight() bool {
	return s != SyncIdle
}

// LinkState is the classification of a configured remote endpoint.
type LinkState string

const (
	LinkEmpty         LinkState = "EMPTY"
	LinkSpreadsheetUI LinkState = "SPREADSHEET_UI"
	LinkValidExec     LinkState = "VALID_EXEC"
	LinkMalformed     LinkState = "MALFORMED"
)
