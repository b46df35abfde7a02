// bench-merge measures time and heap memory of repeated merge passes on a
// synthetic document, the way a long-lived merge tree grows across edits.
//
// Usage:
//
//	go run ./scripts/bench-merge --lines 20000 --passes 20 --edit-rate 0.02 \
//	  --profile-dir docs/profiles/merge
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
)

type heapSnapshot struct {
	label     string
	heapInUse uint64
	elapsed   time.Duration
	nodes     int
	maxDepth  int
}

func main() {
	lineCount := flag.Int("lines", 20000, "Lines in the starting document")
	passes := flag.Int("passes", 10, "Number of merge passes")
	editRate := flag.Float64("edit-rate", 0.01, "Fraction of lines edited per pass")
	seed := flag.Uint64("seed", 1, "Random seed")
	profileDir := flag.String("profile-dir", "", "Directory to write heap profiles (optional)")
	cpuProfile := flag.Bool("cpu-profile", false, "Write CPU profile to profile-dir/cpu.prof")

	flag.Parse()

	if *cpuProfile && *profileDir == "" {
		log.Fatal("--cpu-profile needs --profile-dir")
	}

	if *profileDir != "" {
		if err := os.MkdirAll(*profileDir, 0o755); err != nil { //nolint:gosec // profile output directory.
			log.Fatalf("mkdir profile-dir: %v", err)
		}
	}

	if *cpuProfile {
		cpuPath := filepath.Join(*profileDir, "cpu.prof")

		cpuFile, cpuErr := os.Create(cpuPath)
		if cpuErr != nil {
			log.Fatalf("create cpu profile: %v", cpuErr)
		}
		defer cpuFile.Close()

		if startErr := pprof.StartCPUProfile(cpuFile); startErr != nil {
			log.Fatalf("start cpu profile: %v", startErr)
		}

		defer pprof.StopCPUProfile()

		log.Printf("CPU profiling enabled -> %s", cpuPath)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	doc := synthetic(rng, *lineCount)
	tree := mergetree.FromLines(doc)
	ctx := context.Background()

	var snapshots []heapSnapshot

	record := func(label string, elapsed time.Duration) {
		runtime.GC()

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		st := tree.Stats()
		snapshots = append(snapshots, heapSnapshot{
			label:     label,
			heapInUse: m.HeapInuse,
			elapsed:   elapsed,
			nodes:     tree.Size(),
			maxDepth:  st.MaxDepth,
		})

		log.Printf("  [heap] %-10s inuse=%8s  nodes=%8s  depth=%d  took=%s",
			label, humanize.Bytes(m.HeapInuse), humanize.Comma(int64(tree.Size())), st.MaxDepth, elapsed)

		if *profileDir != "" {
			writeHeapProfile(filepath.Join(*profileDir, "heap_"+label+".prof"))
		}
	}

	record("start", 0)

	for pass := range *passes {
		doc = edit(rng, doc, *editRate)

		start := time.Now()

		next, _, err := tree.Merge(ctx, doc)
		if err != nil {
			log.Fatalf("pass %d: %v", pass, err)
		}

		tree = next

		record(fmt.Sprintf("pass_%d", pass), time.Since(start))
	}

	fmt.Println()
	fmt.Printf("%-10s %10s %10s %6s %12s\n", "label", "heap", "nodes", "depth", "elapsed")

	for _, s := range snapshots {
		fmt.Printf("%-10s %10s %10s %6d %12s\n",
			s.label, humanize.Bytes(s.heapInUse), humanize.Comma(int64(s.nodes)), s.maxDepth, s.elapsed)
	}
}

func synthetic(rng *rand.Rand, n int) []string {
	out := make([]string, n)
	for idx := range out {
		out[idx] = fmt.Sprintf("line %d %x", idx, rng.Uint32())
	}

	return out
}

// edit replaces, deletes or inserts roughly rate*len(doc) lines.
func edit(rng *rand.Rand, doc []string, rate float64) []string {
	out := slices.Clone(doc)
	edits := max(1, int(float64(len(doc))*rate))

	for range edits {
		if len(out) == 0 {
			out = append(out, fmt.Sprintf("new %x", rng.Uint32()))

			continue
		}

		pos := rng.IntN(len(out))

		switch rng.IntN(3) {
		case 0:
			out[pos] = fmt.Sprintf("changed %x", rng.Uint32())
		case 1:
			out = slices.Delete(out, pos, pos+1)
		default:
			out = slices.Insert(out, pos, fmt.Sprintf("new %x", rng.Uint32()))
		}
	}

	return out
}

func writeHeapProfile(path string) {
	f, err := os.Create(path)
	if err != nil {
		log.Printf("warning: create heap profile %s: %v", path, err)

		return
	}
	defer f.Close()

	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Printf("warning: write heap profile %s: %v", path, err)
	}
}
