package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kass/go-store-locator/pkg/dataset"
	"github.com/kass/go-store-locator/pkg/models"
	"github.com/kass/go-store-locator/pkg/rtree"
)

type BenchmarkResult struct {
	QueryType     string
	TotalQueries  int
	Failed        int64
	TotalDuration time.Duration
	AvgDuration   time.Duration
	QueriesPerSec float64
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TotalResults  int64
	AvgResults    float64
}

type bounds struct {
	minLat, maxLat, minLon, maxLon float64
}

func (b bounds) random(r *rand.Rand) models.GeoPoint {
	return models.GeoPoint{
		Lat: b.minLat + r.Float64()*(b.maxLat-b.minLat),
		Lon: b.minLon + r.Float64()*(b.maxLon-b.minLon),
	}
}

// queryFunc runs one query around center and returns the number of results
type queryFunc func(center models.GeoPoint) (int, error)

func main() {
	var (
		indexFile  = flag.String("i", "", "Snapshot file to load (empty generates stores instead)")
		numStores  = flag.Int("stores", 1000000, "Number of random stores when no snapshot is given")
		partitions = flag.Int("p", runtime.NumCPU(), "Number of index partitions")
		queryType  = flag.String("t", "radius", "Query type: radius, nearest, mixed")
		numQueries = flag.Int("n", 1000, "Number of queries to run")
		workers    = flag.Int("w", runtime.NumCPU(), "Number of concurrent workers")
		// Geographic bounds for random queries (default: roughly USA)
		minLat = flag.Float64("min-lat", 25.0, "Minimum latitude for random queries")
		maxLat = flag.Float64("max-lat", 49.0, "Maximum latitude for random queries")
		minLon = flag.Float64("min-lon", -125.0, "Minimum longitude for random queries")
		maxLon = flag.Float64("max-lon", -66.0, "Maximum longitude for random queries")
		// Query-specific parameters
		radius = flag.Float64("radius", 50.0, "Radius in km (for radius queries)")
		limit  = flag.Int("limit", models.DefaultPageLimit, "Page size (for radius queries)")
		k      = flag.Int("k", 100, "Number of nearest stores")
	)
	flag.Parse()

	index := rtree.NewGeoIndexWithPartitions(*partitions)
	if *indexFile != "" {
		log.Printf("Loading index from %s...\n", *indexFile)
		if _, err := index.LoadFromFile(*indexFile); err != nil {
			log.Fatalf("Failed to load index: %v", err)
		}
	} else {
		log.Printf("Generating %d random stores...\n", *numStores)
		start := time.Now()
		if _, err := index.BulkInsert(dataset.RandomStores(*numStores, *workers, time.Now().UnixNano())); err != nil {
			log.Fatalf("Failed to index stores: %v", err)
		}
		log.Printf("Index built in %v\n", time.Since(start))
	}
	count, _ := index.Count()
	log.Printf("Index loaded with %d stores\n", count)

	area := bounds{*minLat, *maxLat, *minLon, *maxLon}
	radiusQuery := func(center models.GeoPoint) (int, error) {
		page, err := index.QueryNear(center, models.Km(*radius), models.PageRequest{Limit: *limit})
		if err != nil {
			return 0, err
		}
		return len(page.Items), nil
	}
	nearestQuery := func(center models.GeoPoint) (int, error) {
		hits, err := index.Nearest(center, *k)
		return len(hits), err
	}

	log.Printf("Running %d %s queries with %d workers...\n", *numQueries, *queryType, *workers)

	var result BenchmarkResult
	switch *queryType {
	case "radius":
		result = runQueries("radius", radiusQuery, *numQueries, *workers, area)
	case "nearest":
		result = runQueries("nearest", nearestQuery, *numQueries, *workers, area)
	case "mixed":
		log.Println("Running mixed benchmark (50% each type)...")
		result = combine("mixed",
			runQueries("radius", radiusQuery, *numQueries/2, *workers, area),
			runQueries("nearest", nearestQuery, *numQueries-*numQueries/2, *workers, area))
	default:
		log.Fatalf("Unknown query type: %s", *queryType)
	}

	// Print results
	fmt.Println("\n=== Benchmark Results ===")
	fmt.Printf("Query Type: %s\n", result.QueryType)
	fmt.Printf("Total Queries: %d\n", result.TotalQueries)
	fmt.Printf("Failed Queries: %d\n", result.Failed)
	fmt.Printf("Total Duration: %v\n", result.TotalDuration)
	fmt.Printf("Average Duration: %v\n", result.AvgDuration)
	fmt.Printf("Queries/Second: %.2f\n", result.QueriesPerSec)
	fmt.Printf("Min Duration: %v\n", result.MinDuration)
	fmt.Printf("Max Duration: %v\n", result.MaxDuration)
	fmt.Printf("Total Results: %d\n", result.TotalResults)
	fmt.Printf("Avg Results/Query: %.2f\n", result.AvgResults)
	fmt.Printf("Workers Used: %d\n", *workers)
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())
}

func runQueries(name string, query queryFunc, numQueries, workers int, area bounds) BenchmarkResult {
	var (
		totalResults int64
		failed       int64
		minDuration  = time.Hour
		maxDuration  time.Duration
		durations    []time.Duration
		mu           sync.Mutex
	)

	startTime := time.Now()

	// Worker pool
	queryCh := make(chan int, numQueries)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(rand.Int63()))

			for range queryCh {
				center := area.random(r)

				queryStart := time.Now()
				n, err := query(center)
				queryDuration := time.Since(queryStart)

				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&totalResults, int64(n))

				mu.Lock()
				durations = append(durations, queryDuration)
				if queryDuration < minDuration {
					minDuration = queryDuration
				}
				if queryDuration > maxDuration {
					maxDuration = queryDuration
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < numQueries; i++ {
		queryCh <- i
	}
	close(queryCh)

	wg.Wait()
	totalDuration := time.Since(startTime)

	var totalDur time.Duration
	for _, d := range durations {
		totalDur += d
	}
	var avgDuration time.Duration
	if len(durations) > 0 {
		avgDuration = totalDur / time.Duration(len(durations))
	} else {
		minDuration = 0
	}

	result := BenchmarkResult{
		QueryType:     name,
		TotalQueries:  numQueries,
		Failed:        failed,
		TotalDuration: totalDuration,
		AvgDuration:   avgDuration,
		QueriesPerSec: float64(numQueries) / totalDuration.Seconds(),
		MinDuration:   minDuration,
		MaxDuration:   maxDuration,
		TotalResults:  totalResults,
	}
	if numQueries > 0 {
		result.AvgResults = float64(totalResults) / float64(numQueries)
	}
	return result
}

func combine(name string, results ...BenchmarkResult) BenchmarkResult {
	out := BenchmarkResult{QueryType: name, MinDuration: time.Hour}
	for _, r := range results {
		out.TotalQueries += r.TotalQueries
		out.Failed += r.Failed
		out.TotalDuration += r.TotalDuration
		out.TotalResults += r.TotalResults
		if r.MinDuration < out.MinDuration {
			out.MinDuration = r.MinDuration
		}
		if r.MaxDuration > out.MaxDuration {
			out.MaxDuration = r.MaxDuration
		}
	}
	if out.TotalQueries > 0 {
		out.AvgDuration = out.TotalDuration / time.Duration(out.TotalQueries)
		out.QueriesPerSec = float64(out.TotalQueries) / out.TotalDuration.Seconds()
		out.AvgResults = float64(out.TotalResults) / float64(out.TotalQueries)
	}
	return out
}
