package redis

// Redis key naming conventions for coordinator data.
// All keys are prefixed with "twitchmon:" to avoid collisions.

const keyPrefix = "twitchmon:"

// instanceKey returns the key for an instance entity: twitchmon:instance:{id}
func instanceKey(id string) string { return keyPrefix + "instance:" + id }

// instanceIDsKey is the Set tracking all instance IDs for enumeration.
const instanceIDsKey = keyPrefix + "instance_ids"

// leaseKey returns the ownership key for a channel: twitchmon:lease:{channel}
// Its value is the owning instance id; its TTL is the stale threshold.
func leaseKey(channelID string) string { return keyPrefix + "lease:" + channelID }

// leaseMetaKey returns the metadata Hash for a lease: twitchmon:lease_meta:{channel}
func leaseMetaKey(channelID string) string { return keyPrefix + "lease_meta:" + channelID }

// leaseChannelsKey is the Set tracking all leased channel ids for enumeration.
const leaseChannelsKey = keyPrefix + "lease_channels"
