package shipping

// RecoveryCatalogEntry is a read-only snapshot of the persisted replication
// catalog record for one secondary database, fetched once at the start of a
// recovery pass and discarded afterwards. The orchestrator never writes it.
type RecoveryCatalogEntry struct {
	PrimaryRole       string
	PrimaryDatabase   string
	SecondaryDatabase string
	SourcePath        string
	DestinationPath   string
	LastCopiedFile    string
	LastRestoredFile  string
	TransportJobName  string
	ApplyJobName      string
}
