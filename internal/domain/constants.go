package domain

// Ledger entry types.
const (
	EntryTypeTopUp       = "TOP_UP"
	EntryTypeTransferOut = "TRANSFER_OUT"
	EntryTypeTransferIn  = "TRANSFER_IN"
	EntryTypeAdminAdjust = "ADMIN_ADJUST"
)

// EntryStatusSuccess is the only status the engine ever persists.
// Failed attempts never produce ledger entries.
const EntryStatusSuccess = "SUCCESS"

// Pagination bounds for ledger listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)
