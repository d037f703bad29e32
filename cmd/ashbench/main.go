// Command ashbench drives allocate/deallocate churn against the buddy
// allocator, the unordered object pool, and the message broker, mirroring
// the teacher's cmd/cli subcommand structure (urfave/cli.App with one
// cli.Command per verb) and progress-bar usage (cmd/cli/cli/object.go's
// mpb.Progress for long-running transfers).
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/NVIDIA/ash/amb"
	"github.com/NVIDIA/ash/memory/buddy"
	"github.com/NVIDIA/ash/memory/buddytab"
	"github.com/NVIDIA/ash/memory/uop"
)

func main() {
	app := cli.NewApp()
	app.Name = "ashbench"
	app.Usage = "churn benchmarks for the buddy allocator, object pool, and message broker"
	app.Commands = []cli.Command{
		benchBuddyCommand,
		benchPoolCommand,
		benchBrokerCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ashbench:", err)
		os.Exit(1)
	}
}

var benchBuddyCommand = cli.Command{
	Name:  "buddy",
	Usage: "allocate/deallocate churn against the buddy allocator",
	Flags: []cli.Flag{
		cli.Int64Flag{Name: "region-size", Value: 1 << 24},
		cli.Int64Flag{Name: "align", Value: 4096},
		cli.Int64Flag{Name: "min-coefficient", Value: 4},
		cli.IntFlag{Name: "iterations", Value: 100_000},
		cli.BoolFlag{Name: "dump-table", Usage: "print the buddy table and exit"},
	},
	Action: runBenchBuddy,
}

func runBenchBuddy(c *cli.Context) error {
	regionSize := c.Int64("region-size")
	align := c.Int64("align")
	minCof := c.Int64("min-coefficient")

	if c.Bool("dump-table") {
		table, err := buddytab.New(regionSize/align, align, minCof)
		if err != nil {
			return err
		}
		for i := 0; i < table.Size(); i++ {
			fmt.Printf("%4d: %s\n", i, table.Property(i))
		}
		return nil
	}

	buf := make([]byte, regionSize)
	alloc, err := buddy.New(buf, align, minCof)
	if err != nil {
		return err
	}
	defer alloc.Close()

	iterations := c.Int("iterations")
	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(iterations),
		mpb.PrependDecorators(decor.Name("buddy churn")),
		mpb.AppendDecorators(decor.Percentage()),
	)

	rng := rand.New(rand.NewSource(1))
	var live []buddy.Handle
	for i := 0; i < iterations; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(live))
			alloc.Deallocate(live[idx])
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
		} else if h, ok := alloc.Allocate(uint64(1 + rng.Intn(4096))); ok {
			live = append(live, h)
		}
		bar.Increment()
	}
	progress.Wait()

	fmt.Printf("outstanding allocations: %d\n", alloc.TotalAllocated())
	return nil
}

var benchPoolCommand = cli.Command{
	Name:  "pool",
	Usage: "allocate/deallocate churn against the unordered object pool",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "cluster-size", Value: uop.DefaultClusterSize},
		cli.IntFlag{Name: "iterations", Value: 100_000},
		cli.StringFlag{Name: "corpus", Usage: "directory to walk for a realistic object-size histogram"},
	},
	Action: runBenchPool,
}

func runBenchPool(c *cli.Context) error {
	sizes, err := corpusSizeHistogram(c.String("corpus"))
	if err != nil {
		return err
	}

	pool := uop.New[[256]byte](uop.WithClusterSize(c.Int("cluster-size")))

	iterations := c.Int("iterations")
	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(iterations),
		mpb.PrependDecorators(decor.Name("pool churn")),
		mpb.AppendDecorators(decor.Percentage()),
	)

	rng := rand.New(rand.NewSource(1))
	var live []*[256]byte
	for i := 0; i < iterations; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(live))
			pool.Deallocate(live[idx])
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
		} else {
			v := pool.Allocate()
			live = append(live, v)
		}
		bar.Increment()
	}
	progress.Wait()

	if len(sizes) > 0 {
		fmt.Printf("corpus histogram: %d sampled object sizes (min=%d max=%d)\n",
			len(sizes), minInt(sizes), maxInt(sizes))
	}
	fmt.Printf("clusters allocated: %d, capacity: %d\n", pool.NumClusters(), pool.Capacity())
	return nil
}

// corpusSizeHistogram walks dir (if non-empty) with godirwalk to collect file
// sizes. runBenchPool only reports their count and range; the pool's element
// size is fixed at 256 bytes and does not depend on them. Returns nil, nil if
// dir is empty.
func corpusSizeHistogram(dir string) ([]int64, error) {
	if dir == "" {
		return nil, nil
	}
	var sizes []int64
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil //nolint:nilerr // best-effort histogram, skip unreadable entries
			}
			sizes = append(sizes, info.Size())
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, err
	}
	return sizes, nil
}

func minInt(xs []int64) int64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxInt(xs []int64) int64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

var benchBrokerCommand = cli.Command{
	Name:  "broker",
	Usage: "send-message throughput against the async message broker",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "channel-capacity", Value: 256},
		cli.IntFlag{Name: "messages", Value: 500_000},
	},
	Action: runBenchBroker,
}

func runBenchBroker(c *cli.Context) error {
	messages := c.Int("messages")
	var processed int

	broker, err := amb.New(amb.Config[int]{
		ChannelCapacity: c.Int("channel-capacity"),
		MsgProc:         func(int) { processed++ },
		Name:            "ashbench-broker",
	})
	if err != nil {
		return err
	}

	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(messages),
		mpb.PrependDecorators(decor.Name("broker throughput")),
		mpb.AppendDecorators(decor.Percentage()),
	)

	start := time.Now()
	for i := 0; i < messages; i++ {
		for broker.SendMessage(i) == amb.ChannelFull {
			time.Sleep(time.Microsecond)
		}
		bar.Increment()
	}
	broker.Close()
	progress.Wait()

	elapsed := time.Since(start)
	fmt.Printf("sent %d messages in %s (%.0f msg/s)\n", messages, elapsed, float64(messages)/elapsed.Seconds())
	return nil
}
