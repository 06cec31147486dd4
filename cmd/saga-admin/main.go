// saga-admin is a CLI tool for inspecting saga instances.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/config"
	"github.com/grafikui/shareaware-saga/workflow"
)

var (
	databaseURL string
	driver      string
	tableName   string
)

// osExit is swapped in tests.
var osExit = os.Exit

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&databaseURL, "db", cfg.DatabaseURL, "Database URL (or set DATABASE_URL env var)")
	flag.StringVar(&driver, "driver", cfg.DBDriver, "Database driver: postgres or sqlite")
	flag.StringVar(&tableName, "table", cfg.Table, "Table name for saga instances")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "list":
		runList(cmdArgs)
	case "show":
		runShow(cmdArgs)
	case "stats":
		runStats(cmdArgs)
	case "stale":
		runStale(cmdArgs)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`saga-admin - Saga instance inspection CLI

Usage:
  saga-admin [flags] <command> [args]

Flags:
  -db string      Database URL (or set DATABASE_URL env var)
  -driver string  Database driver, postgres or sqlite (or set SAGA_DB_DRIVER)
  -table string   Table name for saga instances (default "saga_instances")

Commands:
  list            List instances (optionally filter by status and workflow)
  show <id>       Show details of a specific instance
  stats           Show instance statistics
  stale           List pending instances waiting on a signal
  help            Show this help message

Examples:
  saga-admin -db "postgres://localhost/mydb" list
  saga-admin -db "postgres://localhost/mydb" list --status pending --workflow purchase
  saga-admin -db "postgres://localhost/mydb" show purchase-123
  saga-admin -db "postgres://localhost/mydb" stale --older-than 30m
  saga-admin -driver sqlite -db ./sagas.db stats`)
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	osExit(1)
}

func getStorage() (*saga.SQLStorage, func()) {
	if databaseURL == "" {
		exitf("Error: DATABASE_URL or -db flag required\n")
	}

	cfg := config.Config{DatabaseURL: databaseURL, DBDriver: driver, Table: tableName}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := cfg.OpenDB(ctx)
	if err != nil {
		exitf("Error connecting to database: %v\n", err)
	}

	storage, err := cfg.Storage(db)
	if err != nil {
		db.Close()
		exitf("Error creating storage: %v\n", err)
	}

	return storage, func() { db.Close() }
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (pending, completed, failed)")
	wf := fs.String("workflow", "", "Filter by workflow (purchase, sale, withdrawal, replenishment)")
	limit := fs.Int("limit", 20, "Maximum number of results")
	offset := fs.Int("offset", 0, "Offset for pagination")
	_ = fs.Parse(args)

	storage, cleanup := getStorage()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	filter := saga.InstanceFilter{
		Limit:  *limit,
		Offset: *offset,
	}

	if *status != "" {
		filter.Status = []saga.InstanceStatus{saga.InstanceStatus(*status)}
	}
	if *wf != "" {
		filter.Workflow = []saga.WorkflowType{saga.WorkflowType(*wf)}
	}

	result, err := storage.Query(ctx, filter)
	if err != nil {
		exitf("Error querying instances: %v\n", err)
		return
	}

	if len(result.Instances) == 0 {
		fmt.Println("No sagas found.")
		return
	}

	fmt.Printf("Showing %d of %d sagas:\n\n", len(result.Instances), result.Total)
	printInstances(result.Instances)
}

func printInstances(instances []saga.Instance) {
	fmt.Printf("%-36s %-14s %-10s %-28s %-20s\n", "ID", "WORKFLOW", "STATUS", "LAST SIGNAL", "UPDATED")
	fmt.Println(strings.Repeat("-", 112))

	for _, inst := range instances {
		last := "-"
		if n := len(inst.Applied); n > 0 {
			last = inst.Applied[n-1]
		}
		fmt.Printf("%-36s %-14s %-10s %-28s %-20s\n",
			truncate(inst.ID, 36),
			inst.Workflow,
			inst.Status,
			truncate(last, 28),
			inst.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
}

func runShow(args []string) {
	if len(args) == 0 {
		exitf("Error: saga ID required\n")
		return
	}

	id := args[0]

	storage, cleanup := getStorage()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inst, err := storage.Load(ctx, id)
	if err != nil {
		exitf("Error fetching saga: %v\n", err)
		return
	}

	if inst == nil {
		exitf("Saga not found: %s\n", id)
		return
	}

	fmt.Printf("Saga:     %s\n", inst.ID)
	fmt.Printf("Workflow: %s\n", inst.Workflow)
	fmt.Printf("Status:   %s\n", inst.Status)
	if inst.Archived {
		fmt.Printf("Terminal: %s\n", inst.Terminal)
	}
	fmt.Printf("Version:  %d\n", inst.Version)
	fmt.Printf("Created:  %s\n", inst.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", inst.UpdatedAt.Format(time.RFC3339))

	if len(inst.Applied) > 0 {
		fmt.Printf("\nSignals (%d):\n", len(inst.Applied))
		for i, signal := range inst.Applied {
			fmt.Printf("  %d. %s\n", i+1, signal)
		}
	}

	if len(inst.State) > 0 && string(inst.State) != "{}" {
		fmt.Printf("\nState:\n")
		prettyPrint(inst.State)
	}
}

func runStats(args []string) {
	storage, cleanup := getStorage()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statuses := []saga.InstanceStatus{
		saga.StatusPending,
		saga.StatusCompleted,
		saga.StatusFailed,
	}

	fmt.Println("Saga Statistics:")
	fmt.Println(strings.Repeat("-", 30))

	total := 0
	for _, status := range statuses {
		count, err := storage.CountByStatus(ctx, status)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting %s: %v\n", status, err)
			continue
		}
		total += count
		fmt.Printf("%-15s %d\n", status+":", count)
	}

	fmt.Println(strings.Repeat("-", 30))
	fmt.Printf("%-15s %d\n", "Total:", total)

	fmt.Println("\nPending by workflow:")
	for _, wf := range []saga.WorkflowType{
		workflow.PurchaseType,
		workflow.SaleType,
		workflow.WithdrawalType,
		workflow.ReplenishmentType,
	} {
		result, err := storage.Query(ctx, saga.InstanceFilter{
			Workflow: []saga.WorkflowType{wf},
			Status:   []saga.InstanceStatus{saga.StatusPending},
			Limit:    1,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting %s: %v\n", wf, err)
			continue
		}
		fmt.Printf("%-15s %d\n", wf+":", result.Total)
	}
}

func runStale(args []string) {
	fs := flag.NewFlagSet("stale", flag.ExitOnError)
	olderThan := fs.Duration("older-than", time.Hour, "Minimum time since the last signal")
	limit := fs.Int("limit", 50, "Maximum number of results")
	_ = fs.Parse(args)

	storage, cleanup := getStorage()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-*olderThan)
	result, err := storage.Query(ctx, saga.InstanceFilter{
		Status:        []saga.InstanceStatus{saga.StatusPending},
		UpdatedBefore: &cutoff,
		Limit:         *limit,
	})
	if err != nil {
		exitf("Error querying stale sagas: %v\n", err)
		return
	}

	if len(result.Instances) == 0 {
		fmt.Println("No stale sagas found.")
		return
	}

	fmt.Printf("Stale Sagas (%d total, idle for %s or more):\n\n", result.Total, *olderThan)
	printInstances(result.Instances)

	fmt.Printf("\nPending sagas are never timed out; check the collaborator that owes the last command a reply.\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func prettyPrint(data []byte) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		fmt.Printf("  %s\n", string(data))
		return
	}
	pretty, _ := json.MarshalIndent(v, "  ", "  ")
	fmt.Printf("  %s\n", string(pretty))
}
