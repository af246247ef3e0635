// Command generate-data writes the sample users and orders datasets. The
// generator is seeded, so repeated runs produce identical files.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	userCount  = 150
	orderCount = 200
)

var regions = []string{"Москва", "Санкт-Петербург", "Новосибирск", "Екатеринбург", "Казань"}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	outDir := flag.String("out", "data", "directory to write users.csv and orders.csv into")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	rng := rand.New(rand.NewSource(*seed))

	if err := writeUsers(rng, filepath.Join(*outDir, "users.csv")); err != nil {
		return err
	}
	if err := writeOrders(rng, filepath.Join(*outDir, "orders.csv")); err != nil {
		return err
	}

	fmt.Printf("wrote %d users and %d orders to %s\n", userCount, orderCount, *outDir)
	return nil
}

func writeUsers(rng *rand.Rand, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"user_id", "region", "registration_date", "is_active", "last_login_date"}); err != nil {
		return err
	}

	regStart := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= userCount; i++ {
		registration := regStart.AddDate(0, 0, rng.Intn(61)) // May through June 2024
		lastLogin := registration.AddDate(0, 0, rng.Intn(30))
		record := []string{
			strconv.Itoa(i),
			regions[rng.Intn(len(regions))],
			registration.Format("2006-01-02"),
			strconv.FormatBool(rng.Float64() < 0.8),
			lastLogin.Format("2006-01-02"),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func writeOrders(rng *rand.Rand, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"order_id", "user_id", "order_date", "order_amount", "status"}); err != nil {
		return err
	}

	orderStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= orderCount; i++ {
		amount := 500 + rng.Float64()*14500 // 500 to 15000
		record := []string{
			strconv.Itoa(1000 + i),
			strconv.Itoa(1 + rng.Intn(userCount)),
			orderStart.AddDate(0, 0, rng.Intn(30)).Format("2006-01-02"),
			strconv.FormatFloat(amount, 'f', 2, 64),
			orderStatus(rng.Float64()),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// orderStatus maps a uniform draw to the status distribution: 70% completed,
// 15% pending, 15% cancelled.
func orderStatus(p float64) string {
	switch {
	case p < 0.70:
		return "completed"
	case p < 0.85:
		return "pending"
	default:
		return "cancelled"
	}
}
