package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kvlink/kvlink/cmd/util"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for kvlink backends",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfDurationSec      = 5
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "duration"
	perfTestCmd.Flags().Int(key, 5, util.WrapString("How long to run each benchmark (in seconds)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfDurationSec = viper.GetInt("duration")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for kvlink backends")

	// Print configuration
	conf, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Duration per test: %ds\n", perfDurationSec)
	fmt.Println()

	fmt.Println("starting tests...")

	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	results := make(map[string]gometrics.Timer)

	benchmarks := []struct {
		name string
		prep func(getKey func(int) string)
		op   func(key string) error
	}{
		{
			name: "set",
			op: func(key string) error {
				return kvClient.Set(key, []byte("test"))
			},
		},
		{
			name: "set-large",
			op: func(key string) error {
				return kvClient.Set(key, largeValue)
			},
		},
		{
			name: "get",
			prep: seedKeys,
			op: func(key string) error {
				_, _, err := kvClient.Get(key)
				return err
			},
		},
		{
			name: "has",
			prep: seedKeys,
			op: func(key string) error {
				_, err := kvClient.Has(key)
				return err
			},
		},
		{
			name: "has-not",
			op: func(key string) error {
				_, err := kvClient.Has(key + "-missing")
				return err
			},
		},
		{
			name: "delete",
			prep: seedKeys,
			op: func(key string) error {
				_, err := kvClient.Del(key)
				return err
			},
		},
		{
			name: "mixed",
			prep: seedKeys,
			op:   mixedOp(largeValue),
		},
	}

	for _, bench := range benchmarks {
		if shouldSkip(bench.name) {
			fmt.Printf("%-20sskipped\n", bench.name)
			continue
		}

		getKey, iter := getKeys(bench.name)
		if bench.prep != nil {
			bench.prep(getKey)
		}

		timer := runBenchmark(bench.name, bench.op, getKey)
		results[bench.name] = timer
		printResult(bench.name, timer)

		// cleanup
		iter(func(k string) {
			if _, err := kvClient.Del(k); err != nil {
				log.Printf("(%s) - error deleting key: %v\n", bench.name, err)
			}
		})
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runBenchmark hammers the operation from perfNumThreads goroutines for the
// configured duration, sampling every call into a timer.
func runBenchmark(name string, op func(key string) error, getKey func(int) string) gometrics.Timer {
	timer := gometrics.NewTimer()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < perfNumThreads; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			counter := offset
			for {
				select {
				case <-stop:
					return
				default:
				}

				start := time.Now()
				err := op(getKey(counter))
				timer.UpdateSince(start)
				if err != nil {
					log.Printf("(%s) - operation error: %v\n", name, err)
				}
				counter++
			}
		}(i * perfKeySpread)
	}

	time.Sleep(time.Duration(perfDurationSec) * time.Second)
	close(stop)
	wg.Wait()

	return timer
}

// mixedOp rotates over the four basic operations per key.
func mixedOp(largeValue []byte) func(key string) error {
	var mu sync.Mutex
	counter := 0
	return func(key string) error {
		mu.Lock()
		c := counter
		counter++
		mu.Unlock()

		switch c % 4 {
		case 0:
			return kvClient.Set(key, []byte("test"))
		case 1:
			_, _, err := kvClient.Get(key)
			return err
		case 2:
			_, err := kvClient.Del(key)
			return err
		default:
			_, err := kvClient.Has(key)
			return err
		}
	}
}

// seedKeys writes a small value under every test key.
func seedKeys(getKey func(int) string) {
	for i := 0; i < perfKeySpread; i++ {
		if err := kvClient.Set(getKey(i), []byte("test")); err != nil {
			log.Printf("error seeding key: %v\n", err)
		}
	}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the sampled timer of a benchmark in a formatted way
func printResult(test string, timer gometrics.Timer) {
	if timer.Count() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-20s%d ops\t%.0f ops/sec\tmean=%s\tp50=%s\tp95=%s\tp99=%s\n",
		test,
		timer.Count(),
		timer.RateMean(),
		time.Duration(timer.Mean()),
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(ps[2]),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]gometrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Count", "OpsPerSec", "MeanNs", "P50Ns", "P95Ns", "P99Ns",
		"Endpoints", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "KeysCount", "DurationSec",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})

		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.RateMean()),
			fmt.Sprintf("%.0f", timer.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			viper.GetString("endpoints"),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfDurationSec),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
