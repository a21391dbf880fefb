// Command knode runs a standalone Kademlia DHT node. Flag/subcommand
// shape mirrors the teacher's cmd/utils/flags.go conventions (urfave/cli.v1
// global flags, GPL header carried over from the teacher's own cmd files).
//
// Copyright 2015 The MOAC-core Authors
// This file is part of MOAC-core.
//
// MOAC-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MOAC-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MOAC-core. If not, see <http://www.gnu.org/licenses/>.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/MOACChain/knode/cmd/knode/config"
	"github.com/MOACChain/knode/cmd/knode/display"
	"github.com/MOACChain/knode/engine"
	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/ipc"
	"github.com/MOACChain/knode/klog"
	"github.com/MOACChain/knode/metrics"
	"github.com/MOACChain/knode/natutil"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/node"
	"github.com/MOACChain/knode/nodedb"
	"github.com/MOACChain/knode/routing"
)

func main() {
	app := cli.NewApp()
	app.Name = "knode"
	app.Usage = "a standalone Kademlia DHT node"
	app.Flags = config.Flags
	app.Action = runAction
	app.Commands = []cli.Command{
		{
			Name:   "attach",
			Usage:  "attach an interactive session to a running knode over its IPC endpoint",
			Flags:  []cli.Flag{config.IPCPathFlag},
			Action: attachAction,
		},
		{
			Name:   "bucket-dump",
			Usage:  "print the persisted node database as a routing table, without starting a node",
			Flags:  []cli.Flag{config.NodeDBFlag, config.SelfIDFlag},
			Action: bucketDumpAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(ctx *cli.Context) error {
	log := klog.New("knode")
	cfg, err := config.Load(ctx, log)
	if err != nil {
		return fmt.Errorf("knode: load config: %w", err)
	}

	self, err := resolveSelfID(cfg.SelfID)
	if err != nil {
		return fmt.Errorf("knode: self_id: %w", err)
	}

	if cfg.ExternalIP == "" {
		if ip, err := discoverExternalIP(cfg.UDPPort, log); err == nil {
			cfg.ExternalIP = ip
		} else {
			log.Warnf("knode: NAT discovery failed, external IP unknown: %v", err)
		}
	}

	laddr := net.JoinHostPort(cfg.InternalIP, strconv.Itoa(cfg.UDPPort))
	eng, err := engine.New(laddr, self, log)
	if err != nil {
		return fmt.Errorf("knode: listen %s: %w", laddr, err)
	}
	defer eng.Close()

	var db *nodedb.DB
	if cfg.NodeDBPath != "" {
		db, err = nodedb.Open(cfg.NodeDBPath, log)
		if err != nil {
			return fmt.Errorf("knode: open node database: %w", err)
		}
		defer persistRoutingTable(db, eng.RoutingTable(), log)
		seedFromNodeDB(db, eng, log)
	}

	for _, peerRef := range cfg.BootstrapPeers {
		n, err := parsePeerRef(peerRef)
		if err != nil {
			log.Warnf("knode: skipping invalid bootstrap peer %q: %v", peerRef, err)
			continue
		}
		eng.AddBootstrapNode(n)
	}

	collector := metrics.New()
	if cfg.StatusAddr != "" {
		go func() {
			if err := serveStatus(cfg.StatusAddr, collector, log); err != nil {
				log.Warnf("knode: status endpoint stopped: %v", err)
			}
		}()
	}

	ipcSrv, err := ipc.Listen(cfg.IPCPath, eng, log)
	if err != nil {
		log.Warnf("knode: IPC endpoint unavailable: %v", err)
	} else {
		defer ipcSrv.Close()
		go ipcSrv.Serve()
	}

	if configPath := ctx.String(config.ConfigFileFlag.Name); configPath != "" {
		watcher, err := config.WatchBootstrapPeers(configPath, log, func(peers []string) {
			for _, ref := range peers {
				if n, err := parsePeerRef(ref); err == nil {
					eng.AddBootstrapNode(n)
				}
			}
		})
		if err != nil {
			log.Warnf("knode: could not watch %s for bootstrap_peers changes: %v", configPath, err)
		} else {
			defer watcher.Stop()
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(runCtx)
	log.Infof("knode: listening on %s, self=%s", eng.LocalAddr(), self.Hex())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Infof("knode: shutting down")
	return nil
}

func attachAction(ctx *cli.Context) error {
	path := ctx.String(config.IPCPathFlag.Name)
	conn, err := net.Dial("unix", path)
	if err != nil {
		return fmt.Errorf("knode attach: %w", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	input := liner.NewLiner()
	defer input.Close()
	input.SetCtrlCAborts(true)

	for {
		line, err := input.Prompt("knode> ")
		if err != nil {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		input.AppendHistory(line)
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("knode attach: %w", err)
		}
		reply, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("knode attach: connection closed: %w", err)
		}
		fmt.Print(reply)
	}
}

func bucketDumpAction(ctx *cli.Context) error {
	self, err := resolveSelfID(ctx.String(config.SelfIDFlag.Name))
	if err != nil {
		return err
	}
	path := ctx.String(config.NodeDBFlag.Name)
	if path == "" {
		return fmt.Errorf("knode bucket-dump: -%s is required", config.NodeDBFlag.Name)
	}
	db, err := nodedb.Open(path, nil)
	if err != nil {
		return fmt.Errorf("knode bucket-dump: %w", err)
	}
	defer db.Close()

	table := routing.New(self, netio.Endpoint{}, nil)
	all, err := db.All()
	if err != nil {
		return fmt.Errorf("knode bucket-dump: %w", err)
	}
	for _, n := range all {
		table.AddPeer(n)
	}
	display.WriteBuckets(os.Stdout, table)
	return nil
}

func resolveSelfID(hex string) (id.Id160, error) {
	if hex == "" {
		return id.Random(), nil
	}
	return id.FromHex(hex)
}

func discoverExternalIP(udpPort int, log *klog.Logger) (string, error) {
	natIf, err := natutil.Discover()
	if err != nil {
		return "", err
	}
	ip, err := natIf.ExternalIP()
	if err != nil {
		return "", err
	}
	done := make(chan struct{})
	go natutil.Map(natIf, done, "udp", udpPort, udpPort, "knode", log)
	return ip.String(), nil
}

func serveStatus(addr string, c *metrics.Collector, log *klog.Logger) error {
	return http.ListenAndServe(addr, c.StatusHandler(log))
}

func seedFromNodeDB(db *nodedb.DB, eng *engine.Engine, log *klog.Logger) {
	all, err := db.All()
	if err != nil {
		log.Warnf("knode: failed to read node database: %v", err)
		return
	}
	for _, n := range all {
		eng.RoutingTable().AddPeer(n)
	}
	log.Infof("knode: seeded routing table with %d persisted peers", len(all))
}

func persistRoutingTable(db *nodedb.DB, table *routing.Table, log *klog.Logger) {
	for _, bucket := range table.Buckets() {
		for _, n := range bucket.Nodes() {
			if err := db.Put(n); err != nil {
				log.Warnf("knode: failed to persist peer %s: %v", n.ID.Hex(), err)
			}
		}
	}
	db.Close()
}

// parsePeerRef parses "id@host:port" or bare "host:port" bootstrap peer
// references, defaulting to a random id in the latter case since only
// the endpoint is needed to ping and learn the real id from the reply.
func parsePeerRef(ref string) (*node.Node, error) {
	nodeID := id.Random()
	addr := ref
	if idx := strings.IndexByte(ref, '@'); idx >= 0 {
		var err error
		nodeID, err = id.FromHex(ref[:idx])
		if err != nil {
			return nil, err
		}
		addr = ref[idx+1:]
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip", host)
		if err != nil {
			return nil, err
		}
		ip = resolved.IP
	}
	return node.New(nodeID, netio.Endpoint{IP: ip, Port: uint16(port)}), nil
}
