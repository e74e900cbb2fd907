package storage

import "certmill/internal/ports"

// Provider aliases the storage port so the mains and factory read naturally.
type Provider = ports.StorageProvider
