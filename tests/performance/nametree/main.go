// Command main drives the name index with a bulk write phase followed by
// concurrent point lookups and longest-prefix matches, reporting rough
// throughput numbers. Intended for manual runs against a scratch
// directory, not as part of the test suite.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sushant-115/namedex/core/nametree"
	"github.com/sushant-115/namedex/internal/config"
)

var (
	dataDir = flag.String("dir", "/tmp/namedex", "scratch directory for the index file")
	entries = flag.Int("n", 50000, "number of entries to insert")
	workers = flag.Int("workers", 10, "concurrent lookup workers")
)

func main() {
	flag.Parse()
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}

	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(*dataDir, "index.ndx")
	cfg.Logging.Level = "error"
	tree, err := nametree.Open(cfg)
	if err != nil {
		log.Fatalf("opening index: %v", err)
	}
	defer tree.Close()

	write(tree)
	read(tree)
	prefixMatch(tree)
}

func name(i int) string {
	return fmt.Sprintf("content/bucket-%03d/object-%07d", i%512, i)
}

func write(tree *nametree.BTree) {
	start := time.Now()
	for i := 0; i < *entries; i++ {
		if err := tree.Insert([]byte(name(i)), uint64(i+1)); err != nil {
			log.Fatalf("insert %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	log.Printf("inserted %d entries in %v (%.0f/s)", *entries, elapsed, float64(*entries)/elapsed.Seconds())
}

func read(tree *nametree.BTree) {
	wg := sync.WaitGroup{}
	sem := make(chan struct{}, *workers)
	start := time.Now()
	for i := 0; i < *entries; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			v, err := tree.Search([]byte(name(i)))
			if err != nil {
				log.Println("search error: ", name(i), err)
				return
			}
			if v != uint64(i+1) {
				log.Println("value mismatch: ", name(i))
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)
	log.Printf("searched %d entries in %v (%.0f/s)", *entries, elapsed, float64(*entries)/elapsed.Seconds())
}

func prefixMatch(tree *nametree.BTree) {
	wg := sync.WaitGroup{}
	sem := make(chan struct{}, *workers)
	start := time.Now()
	for i := 0; i < *entries; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			probe := name(i) + "/segment/0001"
			matched, _, err := tree.LongestPrefixMatch([]byte(probe))
			if err != nil {
				log.Println("prefix match error: ", probe, err)
				return
			}
			if matched != len(name(i)) {
				log.Println("prefix length mismatch: ", probe)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)
	log.Printf("prefix-matched %d probes in %v (%.0f/s)", *entries, elapsed, float64(*entries)/elapsed.Seconds())
}
