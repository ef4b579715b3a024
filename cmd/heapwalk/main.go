// heapwalk drives the segment allocator over a simulated window and prints
// the resulting segment report, for eyeballing split and coalesce behavior.
//
// Usage:
//
//	heapwalk [-frames N] [-ops N] [-seed N] [-debug]
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"

	"github.com/wxuefei/arc/mm"
	"github.com/wxuefei/arc/mm/heap"
	"github.com/wxuefei/arc/mm/pmm"
	"github.com/wxuefei/arc/mm/vmm"
)

// windowBase is where the simulated window starts; arbitrary but recognizable.
const windowBase mm.Addr = 0xC000_0000

func main() {
	frames := flag.Int("frames", 1024, "window size in frames")
	ops := flag.Int("ops", 64, "number of random operations to run")
	seed := flag.Int64("seed", 1, "random seed for the operation mix")
	debug := flag.Bool("debug", false, "enable debug logging to stderr")
	flag.Parse()

	level := slog.LevelInfo
	out := io.Discard
	if *debug {
		level = slog.LevelDebug
		out = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	if err := run(log, *frames, *ops, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "heapwalk: %v\n", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, frames, ops int, seed int64) error {
	pool := pmm.NewPool(frames + 8)
	space := vmm.NewSpace()
	ranger := &vmm.Ranger{Frames: pool, Pages: space}

	low := windowBase
	high := low + mm.Addr(frames)*mm.FrameSize - 1
	h, err := heap.New(low, high, pool, space, ranger)
	if err != nil {
		return err
	}
	log.Debug("heap initialized", "low", fmt.Sprintf("%#x", uintptr(low)),
		"high", fmt.Sprintf("%#x", uintptr(high)), "frames", frames)

	rng := rand.New(rand.NewSource(seed))
	var live []mm.Addr
	for i := 0; i < ops; i++ {
		switch {
		case len(live) > 0 && rng.Intn(3) == 0:
			j := rng.Intn(len(live))
			h.Free(live[j])
			log.Debug("free", "ptr", fmt.Sprintf("%#x", uintptr(live[j])))
			live = append(live[:j], live[j+1:]...)
		case rng.Intn(4) == 0:
			size := uintptr(1+rng.Intn(8)) * mm.FrameSize
			ptr, err := h.Reserve(size)
			if err != nil {
				log.Debug("reserve failed", "size", size, "err", err)
				continue
			}
			log.Debug("reserve", "ptr", fmt.Sprintf("%#x", uintptr(ptr)), "size", size)
			live = append(live, ptr)
		default:
			size := uintptr(1+rng.Intn(8)) * mm.FrameSize
			ptr, err := h.Alloc(size, mm.Read|mm.Write)
			if err != nil {
				log.Debug("alloc failed", "size", size, "err", err)
				continue
			}
			log.Debug("alloc", "ptr", fmt.Sprintf("%#x", uintptr(ptr)), "size", size)
			live = append(live, ptr)
		}
	}

	if err := h.Report(os.Stdout); err != nil {
		return err
	}

	s := h.Stats()
	fmt.Printf("\nreserves=%d allocs=%d frees=%d splits=%d (denied %d) merges=%d/%d rollbacks=%d\n",
		s.Reserves, s.Allocs, s.Frees, s.Splits, s.SplitsDenied,
		s.MergesNext, s.MergesPrev, s.Rollbacks)
	fmt.Printf("frames in use: %d, pages mapped: %d, live segments: %d\n",
		pool.InUse(), space.Mapped(), len(live))
	return nil
}
