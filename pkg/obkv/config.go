package obkv

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// cfg holds every tunable named in spec.md §6, plus the connection
// parameters parsed at construction time.
type cfg struct {
	paramURL string
	password string

	fullUserName string
	userName     string
	tenantName   string
	clusterName  string
	database     string

	runningMode RunningMode

	rpcConnectTimeout   time.Duration
	rpcReadTimeout      time.Duration
	rpcLoginTimeout     time.Duration
	rpcOperationTimeout time.Duration
	rpcRetryLimit       int
	rpcRetryInterval    time.Duration

	maxConnsPerServer       int
	minIdleConnsPerServer   int
	connInitThreadNum       int
	tableBatchOpThreadNum   int

	tableEntryRefreshIntervalBase               time.Duration
	tableEntryRefreshIntervalCeiling            time.Duration
	tableEntryRefreshTryTimes                   int
	tableEntryRefreshTryInterval                time.Duration
	tableEntryRefreshContinuousFailureCeiling   int
	runtimeContinuousFailureCeiling             int

	tableEntryAcquireConnectTimeout time.Duration
	tableEntryAcquireReadTimeout    time.Duration
	serverAddressPriorityTimeout   time.Duration

	metadataRefreshInterval time.Duration

	rslistAcquireTimeout       time.Duration
	rslistAcquireTryTimes      int
	rslistAcquireRetryInterval time.Duration
	ocpModelCacheFile          string

	queryConcurrencyLimit int // 0 means unbounded

	sysUserName string
	sysPassword string

	logger   Logger
	registry metricsRegistry

	dial      DialFunc
	login     LoginFunc
	directory DirectoryClient
	catalog   CatalogClient
}

// metricsRegistry is the minimal surface the client needs from
// pkg/obmetrics, kept narrow here so pkg/obkv does not import
// pkg/obmetrics's prometheus dependency directly; see DESIGN.md.
type metricsRegistry interface {
	ObserveDuration(opType string, d time.Duration)
	ObserveDistribution(opType string, v float64)
	IncRetry(opType string)
}

type noopRegistry struct{}

func (noopRegistry) ObserveDuration(string, time.Duration) {}
func (noopRegistry) ObserveDistribution(string, float64)   {}
func (noopRegistry) IncRetry(string)                       {}

func defaultCfg() cfg {
	return cfg{
		runningMode: RunningModeNormal,

		rpcConnectTimeout:   time.Second,
		rpcReadTimeout:      5 * time.Second,
		rpcLoginTimeout:     time.Second,
		rpcOperationTimeout: 10 * time.Second,
		rpcRetryLimit:       3,
		rpcRetryInterval:    20 * time.Millisecond,

		maxConnsPerServer:     8,
		minIdleConnsPerServer: 1,
		connInitThreadNum:     1,
		tableBatchOpThreadNum: 3,

		tableEntryRefreshIntervalBase:             60 * time.Second,
		tableEntryRefreshIntervalCeiling:          15 * time.Minute,
		tableEntryRefreshTryTimes:                 3,
		tableEntryRefreshTryInterval:               20 * time.Millisecond,
		tableEntryRefreshContinuousFailureCeiling: 10,
		runtimeContinuousFailureCeiling:            100,

		tableEntryAcquireConnectTimeout: time.Second,
		tableEntryAcquireReadTimeout:    5 * time.Second,
		serverAddressPriorityTimeout:    3 * time.Second,

		metadataRefreshInterval: 60 * time.Second,

		rslistAcquireTimeout:       time.Second,
		rslistAcquireTryTimes:      3,
		rslistAcquireRetryInterval: 100 * time.Millisecond,

		sysUserName: "proxyro",

		logger:   nopLogger{},
		registry: noopRegistry{},

		dial: defaultDialFunc,
	}
}

// Opt configures a Client. Constructors below mirror franz-go's
// functional-option shape: each is a small struct closing over an
// apply function, applied in order over the zero-value-filled default
// config.
type Opt interface{ apply(*cfg) }

type opt struct{ fn func(*cfg) }

func (o opt) apply(c *cfg) { o.fn(c) }

// WithParamURL sets the bootstrap parameter URL, which must contain a
// `?...&database=NAME&...` query parameter (spec.md §6).
func WithParamURL(u string) Opt {
	return opt{func(c *cfg) { c.paramURL = u }}
}

// WithFullUserName sets the full user name, accepted in either the
// standard `user@tenant#cluster` form or the legacy
// `cluster<sep>tenant<sep>user` form (spec.md §6).
func WithFullUserName(name string) Opt {
	return opt{func(c *cfg) { c.fullUserName = name }}
}

// WithPassword sets the connection password.
func WithPassword(pw string) Opt {
	return opt{func(c *cfg) { c.password = pw }}
}

// WithRunningMode sets Normal or HBase mode (spec.md §6, glossary).
func WithRunningMode(m RunningMode) Opt {
	return opt{func(c *cfg) { c.runningMode = m }}
}

// WithLogger installs a custom Logger.
func WithLogger(l Logger) Opt {
	return opt{func(c *cfg) {
		if l != nil {
			c.logger = l
		}
	}}
}

func withRegistry(r metricsRegistry) Opt {
	return opt{func(c *cfg) {
		if r != nil {
			c.registry = r
		}
	}}
}

// WithMetricsRegistry installs a metrics sink satisfying the narrow
// registry surface the client needs to observe durations, the permit
// distribution, and retries. pkg/obmetrics.New returns one.
func WithMetricsRegistry(r interface {
	ObserveDuration(opType string, d time.Duration)
	ObserveDistribution(opType string, v float64)
	IncRetry(opType string)
}) Opt {
	return withRegistry(r)
}

func durationOpt(set func(*cfg, time.Duration)) func(time.Duration) Opt {
	return func(d time.Duration) Opt { return opt{func(c *cfg) { set(c, d) }} }
}

func intOpt(set func(*cfg, int)) func(int) Opt {
	return func(v int) Opt { return opt{func(c *cfg) { set(c, v) }} }
}

var (
	RPCConnectTimeout   = durationOpt(func(c *cfg, d time.Duration) { c.rpcConnectTimeout = d })
	RPCReadTimeout      = durationOpt(func(c *cfg, d time.Duration) { c.rpcReadTimeout = d })
	RPCLoginTimeout     = durationOpt(func(c *cfg, d time.Duration) { c.rpcLoginTimeout = d })
	RPCOperationTimeout = durationOpt(func(c *cfg, d time.Duration) { c.rpcOperationTimeout = d })
	RPCRetryInterval    = durationOpt(func(c *cfg, d time.Duration) { c.rpcRetryInterval = d })

	MaxConnsPerServer     = intOpt(func(c *cfg, v int) { c.maxConnsPerServer = v })
	MinIdleConnsPerServer = intOpt(func(c *cfg, v int) { c.minIdleConnsPerServer = v })
	ConnInitThreadNum     = intOpt(func(c *cfg, v int) { c.connInitThreadNum = v })
	TableBatchOpThreadNum = intOpt(func(c *cfg, v int) { c.tableBatchOpThreadNum = v })

	TableEntryRefreshIntervalBase             = durationOpt(func(c *cfg, d time.Duration) { c.tableEntryRefreshIntervalBase = d })
	TableEntryRefreshIntervalCeiling          = durationOpt(func(c *cfg, d time.Duration) { c.tableEntryRefreshIntervalCeiling = d })
	TableEntryRefreshTryInterval              = durationOpt(func(c *cfg, d time.Duration) { c.tableEntryRefreshTryInterval = d })
	TableEntryRefreshTryTimes                 = intOpt(func(c *cfg, v int) { c.tableEntryRefreshTryTimes = v })
	TableEntryRefreshContinuousFailureCeiling = intOpt(func(c *cfg, v int) { c.tableEntryRefreshContinuousFailureCeiling = v })
	RuntimeContinuousFailureCeiling           = intOpt(func(c *cfg, v int) { c.runtimeContinuousFailureCeiling = v })

	TableEntryAcquireConnectTimeout = durationOpt(func(c *cfg, d time.Duration) { c.tableEntryAcquireConnectTimeout = d })
	TableEntryAcquireReadTimeout    = durationOpt(func(c *cfg, d time.Duration) { c.tableEntryAcquireReadTimeout = d })
	ServerAddressPriorityTimeout    = durationOpt(func(c *cfg, d time.Duration) { c.serverAddressPriorityTimeout = d })

	MetadataRefreshInterval = durationOpt(func(c *cfg, d time.Duration) { c.metadataRefreshInterval = d })

	RSListAcquireTimeout       = durationOpt(func(c *cfg, d time.Duration) { c.rslistAcquireTimeout = d })
	RSListAcquireRetryInterval = durationOpt(func(c *cfg, d time.Duration) { c.rslistAcquireRetryInterval = d })
	RSListAcquireTryTimes      = intOpt(func(c *cfg, v int) { c.rslistAcquireTryTimes = v })
)

// RPCRetryLimit sets the retry budget for Execute (spec.md §4.6).
func RPCRetryLimit(n int) Opt {
	return opt{func(c *cfg) { c.rpcRetryLimit = n }}
}

// OCPModelCacheFile sets the on-disk cache path the (out-of-scope)
// directory client may read through on initial bootstrap (spec.md
// §4.4, §6).
func OCPModelCacheFile(path string) Opt {
	return opt{func(c *cfg) { c.ocpModelCacheFile = path }}
}

// QueryConcurrencyLimit bounds outstanding stream queries via a global
// semaphore (spec.md §4.8, §9 "Concurrency permits"). A value <= 0
// leaves queries unbounded.
func QueryConcurrencyLimit(n int) Opt {
	return opt{func(c *cfg) { c.queryConcurrencyLimit = n }}
}

// SysUserName sets the system account used for internal catalog
// queries (spec.md §6).
func SysUserName(name string) Opt {
	return opt{func(c *cfg) { c.sysUserName = name }}
}

// SysPassword sets the system account's password.
func SysPassword(pw string) Opt {
	return opt{func(c *cfg) { c.sysPassword = pw }}
}

// WithDialFunc overrides how the client dials a backend's raw TCP
// connection. Defaults to net.Dialer.DialContext.
func WithDialFunc(d DialFunc) Opt {
	return opt{func(c *cfg) {
		if d != nil {
			c.dial = d
		}
	}}
}

// WithLoginFunc installs the wire codec's authentication handshake,
// the seam between this client's connection pool and the (out-of-scope)
// on-the-wire protocol (spec.md §1, §4.2).
func WithLoginFunc(l LoginFunc) Opt {
	return opt{func(c *cfg) { c.login = l }}
}

// WithDirectoryClient installs the bootstrap directory/"OCP manager"
// collaborator (spec.md §4.4) — out of scope to implement, required to
// resolve the root-server address list.
func WithDirectoryClient(d DirectoryClient) Opt {
	return opt{func(c *cfg) { c.directory = d }}
}

// WithCatalogClient installs the per-backend internal-catalog query
// collaborator (spec.md §4.4, §4.5) the table-entry locator drives.
func WithCatalogClient(cat CatalogClient) Opt {
	return opt{func(c *cfg) { c.catalog = cat }}
}

func (c *cfg) validate() error {
	if strings.TrimSpace(c.paramURL) == "" {
		panic("obkv: param url must not be blank")
	}
	if _, err := url.ParseQuery(paramURLQuery(c.paramURL)); err != nil {
		panic(fmt.Sprintf("obkv: malformed param url: %v", err))
	}
	if !strings.Contains(c.paramURL, "database=") {
		panic("obkv: param url must contain a database= parameter")
	}
	userName, tenant, cluster, err := ParseFullUserName(c.fullUserName)
	if err != nil {
		panic("obkv: malformed full user name: " + err.Error())
	}
	c.userName, c.tenantName, c.clusterName = userName, tenant, cluster

	if c.login == nil {
		panic("obkv: WithLoginFunc is required: the wire login handshake has no default")
	}
	if c.directory == nil {
		panic("obkv: WithDirectoryClient is required: bootstrapping the root-server list has no default")
	}
	if c.catalog == nil {
		panic("obkv: WithCatalogClient is required: querying table metadata has no default")
	}

	if c.maxConnsPerServer <= 0 {
		return fmt.Errorf("obkv: max conns per server must be positive")
	}
	if c.minIdleConnsPerServer < 0 || c.minIdleConnsPerServer > c.maxConnsPerServer {
		return fmt.Errorf("obkv: min idle conns per server out of range")
	}
	if c.rpcRetryLimit < 0 {
		return fmt.Errorf("obkv: rpc retry limit must not be negative")
	}
	return nil
}

func paramURLQuery(paramURL string) string {
	if i := strings.IndexByte(paramURL, '?'); i >= 0 {
		return paramURL[i+1:]
	}
	return ""
}

// ParseFullUserName parses the two accepted full-user-name forms
// (spec.md §6, SPEC_FULL.md §6):
//
//   - standard:  user@tenant#cluster
//   - legacy:    cluster<sep>tenant<sep>user  where <sep> in {':','-','.'}
//     and the separator's first and last occurrence must differ (i.e.
//     there must be at least two separator characters in the string).
func ParseFullUserName(full string) (user, tenant, cluster string, err error) {
	if strings.ContainsAny(full, "@#") {
		at := strings.IndexByte(full, '@')
		hash := strings.IndexByte(full, '#')
		if at < 0 || hash < 0 || hash < at {
			return "", "", "", fmt.Errorf("malformed standard full user name %q", full)
		}
		user = full[:at]
		tenant = full[at+1 : hash]
		cluster = full[hash+1:]
		if user == "" || tenant == "" || cluster == "" {
			return "", "", "", fmt.Errorf("malformed standard full user name %q", full)
		}
		return user, tenant, cluster, nil
	}

	for _, sep := range []byte{':', '-', '.'} {
		first := strings.IndexByte(full, sep)
		last := strings.LastIndexByte(full, sep)
		if first < 0 || first == last {
			continue
		}
		cluster = full[:first]
		tenant = full[first+1 : last]
		user = full[last+1:]
		if cluster == "" || tenant == "" || user == "" {
			continue
		}
		return user, tenant, cluster, nil
	}
	return "", "", "", fmt.Errorf("malformed full user name %q: expected user@tenant#cluster or cluster<sep>tenant<sep>user", full)
}
