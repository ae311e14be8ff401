package execution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"trading-robot/internal/model"
)

// WriteOrderStrategies writes the order documents of trades to path as an
// indented JSON array, creating parent directories.
func WriteOrderStrategies(path string, trades []*Trade) error {
	orders := make([]model.Order, 0, len(trades))
	for _, t := range trades {
		orders = append(orders, t.Order())
	}
	return writeOrders(path, orders)
}

// WriteSubmitted writes the orders a dispatcher actually sent.
func WriteSubmitted(path string, d *Dispatch) error {
	return writeOrders(path, d.Submitted())
}

func writeOrders(path string, orders []model.Order) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("audit: mkdir %s: %w", dir, err)
		}
	}
	b, err := json.MarshalIndent(orders, "", "    ")
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return os.Rename(tmp, path)
}
