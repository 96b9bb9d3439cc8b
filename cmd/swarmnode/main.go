// Package main is the mesh node's thin CLI entry point (spec §6: "CLI
// surface is thin, out of core scope").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/banyanmesh/core/cmn/cos"
	"github.com/banyanmesh/core/cmn/nlog"
	"github.com/banyanmesh/core/gossip"
	"github.com/banyanmesh/core/node"
)

const version = "0.1.0"

var (
	dataDir  string
	query    string
	logDir   string
)

func init() {
	flag.StringVar(&dataDir, "path", "", "data directory (overrides ACTYX_PATH)")
	flag.StringVar(&query, "query", "", "run one AQL query against the local store and print the results, then exit")
	flag.StringVar(&logDir, "log_dir", "", "directory to write log files (empty: stderr only)")
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	if len(os.Args) == 2 && strings.Contains(os.Args[1], "help") {
		printVer()
		flag.PrintDefaults()
		os.Exit(0)
	}
	installSignalHandler()
	flag.Parse()

	if dataDir == "" {
		dataDir = os.Getenv("ACTYX_PATH")
	}
	if dataDir == "" {
		fmt.Fprintln(os.Stderr, "FATAL ERROR: missing data directory (use -path or set ACTYX_PATH)")
		os.Exit(2)
	}
	nlog.SetLogDir(logDir)

	self, err := loadOrCreateIdentity(dataDir)
	if err != nil {
		cos.ExitLogf("Failed to load/create node identity: %v", err)
	}
	nlog.Infof("swarmnode %s starting, node id %s", version, self)

	n, err := node.New(node.Deps{
		Dir:       dataDir,
		Self:      self,
		GossipBus: gossip.NewLocalBus(),
	})
	if err != nil {
		cos.ExitLogf("Failed to open node at %q: %v", dataDir, err)
	}
	defer n.Close()

	if err := writePidFile(); err != nil {
		cos.ExitLogf("Failed to write pid file: %v", err)
	}
	defer removePidFile()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Run(ctx)

	if query != "" {
		runQuery(ctx, n)
		nlog.Flush(true)
		return
	}

	nlog.Infof("swarmnode running; awaiting signal")
	<-ctx.Done()
	nlog.Flush(true)
}

func runQuery(ctx context.Context, n *node.Node) {
	vals, err := n.Query(ctx, query)
	if err != nil {
		cos.ExitLogf("Query failed: %v", err)
	}
	for _, v := range vals {
		fmt.Printf("%+v\n", v.ToGo())
	}
}

func printVer() {
	fmt.Printf("swarmnode version %s\n", version)
}

func installSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		nlog.Flush(true)
		removePidFile()
		os.Exit(0)
	}()
}

func pidFilePath() string {
	return os.Getenv("ACTYX_PID_FILE")
}

func writePidFile() error {
	path := pidFilePath()
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePidFile() {
	if path := pidFilePath(); path != "" {
		os.Remove(path)
	}
}
