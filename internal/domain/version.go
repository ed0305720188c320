package domain

// Version constants for the ledger wire format and engine.
const (
	// SchemaVersion is the ledger entry schema version written to every line.
	SchemaVersion = 1

	// EngineVersion is the riskledger engine version.
	EngineVersion = "0.1.0"
)
