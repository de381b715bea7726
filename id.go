package twitchmon

import "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/id"

// ID is the identifier type for twitchmon entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
