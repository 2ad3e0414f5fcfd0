package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/labstock/internal/adapter/storage"
	"github.com/rl1809/labstock/internal/core/domain"
	"github.com/rl1809/labstock/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	keyPrefix     = "labstock-stress:"
	itemID        = "stress-item"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Initialize store and service on a clean prefix
	store := service.NewLocalStore(storage.NewRedisAdapter(rdb), keyPrefix)
	inventory := service.NewInventoryService(store, nil, service.InventoryOptions{})
	if err := inventory.Load(ctx); err != nil {
		log.Fatalf("failed to load: %v", err)
	}
	if err := inventory.Reset(ctx); err != nil {
		log.Fatalf("failed to reset: %v", err)
	}
	if _, err := inventory.AddItem(ctx, domain.InventoryItem{
		ID: itemID, Name: "Stress Item", Unit: "PCS", Stock: initialStock, MinStock: 5,
	}); err != nil {
		log.Fatalf("failed to add item: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent outbound movements
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := inventory.RecordMovement(ctx, domain.Transaction{
				ItemID:    itemID,
				Type:      domain.TransactionOut,
				Quantity:  1,
				Requester: fmt.Sprintf("user-%d", n),
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Recorded:         %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Every movement is logged even once stock is exhausted
	if success == totalRequests && fail == 0 {
		fmt.Printf("PASS: all %d movements recorded\n", totalRequests)
	} else {
		fmt.Printf("FAIL: expected %d recorded, got %d (%d failed)\n", totalRequests, success, fail)
	}

	item, err := inventory.Item(itemID)
	if err != nil {
		log.Fatalf("item lookup failed: %v", err)
	}
	if item.Stock == 0 {
		fmt.Println("PASS: stock clamped at 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", item.Stock)
	}

	// A fresh service over the same keys must see exactly what was acknowledged
	reloaded := service.NewInventoryService(store, nil, service.InventoryOptions{})
	if err := reloaded.Load(ctx); err != nil {
		log.Fatalf("failed to reload: %v", err)
	}
	persisted, _ := reloaded.Item(itemID)
	logLen := len(reloaded.Transactions())
	fmt.Printf("Persisted Stock:  %d\n", persisted.Stock)
	fmt.Printf("Persisted Log:    %d\n", logLen)

	if persisted.Stock == item.Stock && logLen == totalRequests {
		fmt.Println("PASS: persisted state matches memory")
	} else {
		fmt.Printf("FAIL: persisted stock %d log %d, expected %d and %d\n",
			persisted.Stock, logLen, item.Stock, totalRequests)
	}

	if err := inventory.Reset(ctx); err != nil {
		log.Printf("cleanup failed: %v", err)
	}
}
