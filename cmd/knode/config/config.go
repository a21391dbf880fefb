// Package config resolves a knode run's configuration from, in
// increasing priority, defaults, an optional knode.toml file
// (parsed with github.com/naoina/toml, the package the teacher's
// go.mod already carries), and urfave/cli.v1 flags — mirroring the
// teacher's own flags.go + toml-backed config loader split described
// in cmd/utils/flags.go. A background watcher built on
// github.com/rjeczalik/notify reloads bootstrap_peers from the file
// whenever it changes on disk and invokes a caller-supplied callback,
// so a long-running node can pick up new bootstrap peers without a
// restart.
package config

import (
	"io/ioutil"

	"github.com/naoina/toml"
	"github.com/rjeczalik/notify"
	"gopkg.in/urfave/cli.v1"

	"github.com/MOACChain/knode/klog"
)

// Config is the fully resolved set of options a knode run needs.
type Config struct {
	SelfID         string   `toml:"self_id"`
	ExternalIP     string   `toml:"external_ip"`
	InternalIP     string   `toml:"internal_ip"`
	UDPPort        int      `toml:"udp_port"`
	IPv6Bind       bool     `toml:"ipv6_bind"`
	BootstrapPeers []string `toml:"bootstrap_peers"`
	NodeDBPath     string   `toml:"node_db_path"`
	IPCPath        string   `toml:"ipc_path"`
	StatusAddr     string   `toml:"status_addr"`
}

var (
	ConfigFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	SelfIDFlag = cli.StringFlag{
		Name:  "self_id",
		Usage: "this node's 160-bit hex identifier (random if omitted)",
	}
	ExternalIPFlag = cli.StringFlag{
		Name:  "external_ip",
		Usage: "externally reachable IP address (recorded only; not sent to peers, which see the datagram source address)",
	}
	InternalIPFlag = cli.StringFlag{
		Name:  "internal_ip",
		Usage: "local IP address to bind the UDP socket to",
		Value: "0.0.0.0",
	}
	UDPPortFlag = cli.IntFlag{
		Name:  "udp_port",
		Usage: "UDP port for the Kademlia wire protocol",
		Value: 30310,
	}
	IPv6BindFlag = cli.BoolFlag{
		Name:  "ipv6_bind",
		Usage: "IPv6 bind option (accepted and stored; no IPv6 socket is bound)",
	}
	BootstrapPeersFlag = cli.StringFlag{
		Name:  "bootstrap_peers",
		Usage: "comma-separated list of id@host:port bootstrap peers",
	}
	NodeDBFlag = cli.StringFlag{
		Name:  "node_db",
		Usage: "path to the persistent peer cache (empty disables persistence)",
	}
	IPCPathFlag = cli.StringFlag{
		Name:  "ipcpath",
		Usage: "filename for the IPC socket/pipe",
		Value: "knode.ipc",
	}
	StatusAddrFlag = cli.StringFlag{
		Name:  "status_addr",
		Usage: "address to serve the /status metrics endpoint on (empty disables it)",
	}
)

// Flags is the full flag set cmd/knode registers on its run command.
var Flags = []cli.Flag{
	ConfigFileFlag,
	SelfIDFlag,
	ExternalIPFlag,
	InternalIPFlag,
	UDPPortFlag,
	IPv6BindFlag,
	BootstrapPeersFlag,
	NodeDBFlag,
	IPCPathFlag,
	StatusAddrFlag,
}

// Default returns the zero-value-safe baseline config, overwritten by
// a config file and then CLI flags.
func Default() Config {
	return Config{
		InternalIP: "0.0.0.0",
		UDPPort:    30310,
		IPCPath:    "knode.ipc",
	}
}

// Load reads path (if non-empty) as a TOML file on top of Default, then
// applies any flags the user explicitly set on ctx, which always win.
func Load(ctx *cli.Context, log *klog.Logger) (Config, error) {
	if log == nil {
		log = klog.Nop()
	}
	cfg := Default()

	if path := ctx.String(ConfigFileFlag.Name); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
		log.Infof("config: loaded %s", path)
	}

	applyFlags(ctx, &cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return toml.Unmarshal(data, cfg)
}

func applyFlags(ctx *cli.Context, cfg *Config) {
	if ctx.IsSet(SelfIDFlag.Name) {
		cfg.SelfID = ctx.String(SelfIDFlag.Name)
	}
	if ctx.IsSet(ExternalIPFlag.Name) {
		cfg.ExternalIP = ctx.String(ExternalIPFlag.Name)
	}
	if ctx.IsSet(InternalIPFlag.Name) {
		cfg.InternalIP = ctx.String(InternalIPFlag.Name)
	}
	if ctx.IsSet(UDPPortFlag.Name) {
		cfg.UDPPort = ctx.Int(UDPPortFlag.Name)
	}
	if ctx.IsSet(IPv6BindFlag.Name) {
		cfg.IPv6Bind = ctx.Bool(IPv6BindFlag.Name)
	}
	if ctx.IsSet(BootstrapPeersFlag.Name) {
		cfg.BootstrapPeers = splitPeers(ctx.String(BootstrapPeersFlag.Name))
	}
	if ctx.IsSet(NodeDBFlag.Name) {
		cfg.NodeDBPath = ctx.String(NodeDBFlag.Name)
	}
	if ctx.IsSet(IPCPathFlag.Name) {
		cfg.IPCPath = ctx.String(IPCPathFlag.Name)
	}
	if ctx.IsSet(StatusAddrFlag.Name) {
		cfg.StatusAddr = ctx.String(StatusAddrFlag.Name)
	}
}

func splitPeers(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// Watcher reloads bootstrap_peers from path whenever the file changes,
// invoking onChange with the newly parsed peer list.
type Watcher struct {
	events chan notify.EventInfo
	done   chan struct{}
	log    *klog.Logger
}

// WatchBootstrapPeers starts watching path for writes and calls
// onChange with the file's current bootstrap_peers list each time it
// changes. Call Stop to release the underlying watch.
func WatchBootstrapPeers(path string, log *klog.Logger, onChange func([]string)) (*Watcher, error) {
	if log == nil {
		log = klog.Nop()
	}
	events := make(chan notify.EventInfo, 4)
	if err := notify.Watch(path, events, notify.Write); err != nil {
		return nil, err
	}
	w := &Watcher{events: events, done: make(chan struct{}), log: log}
	go w.loop(path, onChange)
	return w, nil
}

func (w *Watcher) loop(path string, onChange func([]string)) {
	for {
		select {
		case <-w.events:
			var cfg Config
			if err := loadFile(path, &cfg); err != nil {
				w.log.Warnf("config: reload of %s failed: %v", path, err)
				continue
			}
			w.log.Infof("config: bootstrap_peers reloaded (%d peers)", len(cfg.BootstrapPeers))
			onChange(cfg.BootstrapPeers)
		case <-w.done:
			return
		}
	}
}

// Stop releases the watch and stops the reload goroutine.
func (w *Watcher) Stop() {
	notify.Stop(w.events)
	close(w.done)
}
