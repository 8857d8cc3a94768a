package config

import "time"

// CurrentConfigVersion is the latest configuration schema version this
// binary understands. Bump when adding fields that require migration.
const CurrentConfigVersion = 1

// Config is the unified runtime configuration for a link peer: identity,
// transport, membership/broadcast tuning, replication limits, storage,
// and the local RPC surface.
type Config struct {
	Version     int               `yaml:"version,omitempty"`
	Identity    IdentityConfig    `yaml:"identity"`
	Transport   TransportConfig   `yaml:"transport"`
	Membership  MembershipConfig  `yaml:"membership"`
	Broadcast   BroadcastConfig   `yaml:"broadcast"`
	Replication ReplicationConfig `yaml:"replication"`
	Storage     StorageConfig     `yaml:"storage"`
	RPC         RPCConfig         `yaml:"rpc"`
	Discovery   DiscoveryConfig   `yaml:"discovery,omitempty"`
	Telemetry   TelemetryConfig   `yaml:"telemetry,omitempty"`
}

// IdentityConfig locates the peer's own Ed25519 key material.
type IdentityConfig struct {
	KeyFile string `yaml:"key_file"`
}

// TransportConfig configures the QUIC-like substrate (spec §4.6).
type TransportConfig struct {
	ListenAddress string `yaml:"listen_address"`

	// ALPNVersion is the version byte appended to the "rad/" ALPN token.
	ALPNVersion byte `yaml:"alpn_version"`

	// LogicalNetwork optionally scopes the peer to a named network,
	// suffixing the ALPN token.
	LogicalNetwork string `yaml:"logical_network,omitempty"`

	// MaxIdleTimeout bounds idle QUIC connections. Half of it becomes
	// the membership tickle interval.
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout"`
}

// MembershipConfig tunes the HyParView partial view (spec §4.1).
type MembershipConfig struct {
	MaxActive            int           `yaml:"max_active"`
	MaxPassive           int           `yaml:"max_passive"`
	ActiveRandomWalkLen  int           `yaml:"active_random_walk_length"`
	PassiveRandomWalkLen int           `yaml:"passive_random_walk_length"`
	ShuffleSample        int           `yaml:"shuffle_sample"`
	ShuffleInterval      time.Duration `yaml:"shuffle_interval"`
	PromoteInterval      time.Duration `yaml:"promote_interval"`
}

// BroadcastConfig tunes the Plumtree gossip layer (spec §4.2).
type BroadcastConfig struct {
	NonceTTL time.Duration `yaml:"nonce_ttl"`
}

// ReplicationConfig tunes fetch limits and manifest constraints (spec §4.4, §4.5).
type ReplicationConfig struct {
	// FetchLimitBase is the per-remote byte budget; the effective budget
	// for a fetch scales with the number of remotes involved. Accepted
	// as a human-readable size string in YAML (e.g. "64MB") and resolved
	// to bytes at load time via ParseDataSize.
	FetchLimitBase string `yaml:"fetch_limit_base"`
	FetchLimitBytes int64 `yaml:"-"`

	FetchSlotWaitTimeout time.Duration `yaml:"fetch_slot_wait_timeout"`

	// MaxSignedRefsRemoteDepth bounds the recursive `remotes` tree depth
	// in an admitted signed-refs manifest.
	MaxSignedRefsRemoteDepth int `yaml:"max_signed_refs_remote_depth"`

	// AllowSymbolicRefTypeChange opts into accepting an advertised ref
	// whose type changed between symbolic and direct.
	AllowSymbolicRefTypeChange bool `yaml:"allow_symbolic_ref_type_change"`
}

// StorageConfig tunes the storage pool and pack cache (spec §5).
type StorageConfig struct {
	Root string `yaml:"root"`

	// PoolSize bounds concurrently open git storage handles. Zero means
	// "use runtime.NumCPU()", the spec's default.
	PoolSize int `yaml:"pool_size"`

	// PackCacheSize bounds the LRU pack/object cache entry count.
	PackCacheSize int `yaml:"pack_cache_size"`
}

// RPCConfig locates the local control-plane sockets (spec §6).
type RPCConfig struct {
	RequestSocket string `yaml:"request_socket"`
	EventSocket   string `yaml:"event_socket"`
}

// DiscoveryConfig configures bootstrap and LAN discovery.
type DiscoveryConfig struct {
	BootstrapPeers []string `yaml:"bootstrap_peers"`

	// MDNSEnabled enables LAN peer discovery as a supplement to the
	// configured bootstrap peers. Defaults to true when unset.
	MDNSEnabled *bool `yaml:"mdns_enabled,omitempty"`
}

// IsMDNSEnabled reports whether LAN discovery is enabled.
func (d *DiscoveryConfig) IsMDNSEnabled() bool {
	if d.MDNSEnabled == nil {
		return true
	}
	return *d.MDNSEnabled
}

// TelemetryConfig controls metrics collection. Exporting them over HTTP
// is out of scope; only in-process collectors are ever enabled.
type TelemetryConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Default returns a Config with every tunable set to the spec's defaults.
func Default() Config {
	return Config{
		Version: CurrentConfigVersion,
		Transport: TransportConfig{
			ListenAddress:  "0.0.0.0:0",
			ALPNVersion:    2,
			MaxIdleTimeout: 30 * time.Second,
		},
		Membership: MembershipConfig{
			MaxActive:            5,
			MaxPassive:           30,
			ActiveRandomWalkLen:  5,
			PassiveRandomWalkLen: 2,
			ShuffleSample:        3,
			ShuffleInterval:      60 * time.Second,
			PromoteInterval:      30 * time.Second,
		},
		Broadcast: BroadcastConfig{
			NonceTTL: 5 * time.Minute,
		},
		Replication: ReplicationConfig{
			FetchLimitBase:           "64MB",
			FetchLimitBytes:          64 * 1024 * 1024,
			FetchSlotWaitTimeout:     30 * time.Second,
			MaxSignedRefsRemoteDepth: 3,
		},
		Storage: StorageConfig{
			PackCacheSize: 4096,
		},
		RPC: RPCConfig{
			RequestSocket: "linkd.sock",
			EventSocket:   "linkd-events.sock",
		},
	}
}
