// Command holdmymap is the device-side CLI: a local-first replica of one
// group's points that works offline and reconciles with the server when
// connectivity allows.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/holdmymap/holdmymap/internal/gateway"
	"github.com/holdmymap/holdmymap/internal/models"
	"github.com/holdmymap/holdmymap/internal/netmon"
	"github.com/holdmymap/holdmymap/internal/replica"
	"github.com/holdmymap/holdmymap/internal/storage/sqlite"
	"github.com/holdmymap/holdmymap/internal/syncer"
	"github.com/holdmymap/holdmymap/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./holdmymap.db"
	}
	return filepath.Join(home, ".holdmymap", "replica.db")
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: holdmymap [flags] <command> [args]

Commands:
  group use <code>           switch to an existing group
  group create <code> <name> create a new group (requires connectivity)
  list                       list the active group's points
  add <name> <lat> <lng> [description]
  update <id> <name> <lat> <lng> [description]
  delete <id>
  refresh                    reconcile with the server now
  import <file.csv>          bulk import points (name,description,latitude,longitude)

Flags:`)
	flag.PrintDefaults()
}

func main() {
	serverURL := flag.String("server", getEnv("SERVER_URL", "http://localhost:8080"), "server base URL")
	dbPath := flag.String("db", getEnv("REPLICA_DB", defaultDBPath()), "local replica database")
	flag.Usage = usage
	flag.Parse()

	logging.Setup()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		slog.Error("failed to open local replica", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	monitor := netmon.New()
	netmon.Probe(ctx, monitor, *serverURL)

	gw := gateway.New(*serverURL, nil)
	engine := syncer.New(store, gw)
	controller := replica.NewController(store, engine, monitor)

	app := &app{controller: controller, gateway: gw, monitor: monitor}
	if err := app.run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type app struct {
	controller *replica.Controller
	gateway    *gateway.Client
	monitor    *netmon.Monitor
}

func (a *app) run(ctx context.Context, args []string) error {
	switch args[0] {
	case "group":
		if len(args) < 3 {
			return fmt.Errorf("usage: group use <code> | group create <code> <name>")
		}
		switch args[1] {
		case "use":
			return a.useGroup(ctx, args[2])
		case "create":
			if len(args) < 4 {
				return fmt.Errorf("usage: group create <code> <name>")
			}
			return a.createGroup(ctx, args[2], args[3])
		default:
			return fmt.Errorf("unknown group subcommand %q", args[1])
		}
	case "list":
		return a.withGroup(ctx, func() error { return a.list() })
	case "add":
		if len(args) < 4 {
			return fmt.Errorf("usage: add <name> <lat> <lng> [description]")
		}
		return a.withGroup(ctx, func() error { return a.add(ctx, args[1:]) })
	case "update":
		if len(args) < 5 {
			return fmt.Errorf("usage: update <id> <name> <lat> <lng> [description]")
		}
		return a.withGroup(ctx, func() error { return a.update(ctx, args[1:]) })
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: delete <id>")
		}
		return a.withGroup(ctx, func() error { return a.controller.Delete(ctx, args[1]) })
	case "refresh":
		return a.withGroup(ctx, func() error {
			if err := a.controller.Refresh(ctx); err != nil {
				return err
			}
			return a.list()
		})
	case "import":
		if len(args) < 2 {
			return fmt.Errorf("usage: import <file.csv>")
		}
		return a.withGroup(ctx, func() error { return a.importCSV(ctx, args[1]) })
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// withGroup restores the previously used group before running fn.
func (a *app) withGroup(ctx context.Context, fn func() error) error {
	if err := a.controller.RestoreLastGroup(ctx); err != nil {
		return fmt.Errorf("no active group; run \"holdmymap group use <code>\" first")
	}
	return fn()
}

func (a *app) useGroup(ctx context.Context, code string) error {
	if err := a.controller.UseGroup(ctx, code); err != nil {
		return err
	}
	group := a.controller.ActiveGroup()
	fmt.Printf("Using group %s (%s)\n", group.Code, group.Name)
	return a.list()
}

func (a *app) createGroup(ctx context.Context, code, name string) error {
	if err := a.controller.CreateGroup(ctx, code, name); err != nil {
		return err
	}
	group := a.controller.ActiveGroup()
	fmt.Printf("Created group %s (%s)\n", group.Code, group.Name)
	return nil
}

func (a *app) list() error {
	points := a.controller.Points()
	if len(points) == 0 {
		fmt.Println("No points.")
		return nil
	}
	for _, p := range points {
		marker := " "
		if p.SyncStatus == models.SyncPending {
			marker = "*"
		}
		fmt.Printf("%s %-36s %-24s %9.4f %9.4f  %s\n",
			marker, p.ID, p.Name, p.Latitude, p.Longitude, p.Description)
	}
	if a.monitor.Offline() {
		fmt.Println("(offline; * = pending sync)")
	}
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	name := args[0]
	lat, lng, err := parseCoords(args[1], args[2])
	if err != nil {
		return err
	}
	description := ""
	if len(args) > 3 {
		description = args[3]
	}

	point, err := a.controller.Add(ctx, name, description, lat, lng)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s (%s, %s)\n", point.Name, point.ID, point.SyncStatus)
	return nil
}

func (a *app) update(ctx context.Context, args []string) error {
	id, name := args[0], args[1]
	lat, lng, err := parseCoords(args[2], args[3])
	if err != nil {
		return err
	}

	var target *models.Point
	for _, p := range a.controller.Points() {
		if p.ID == id {
			target = &p
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no point with id %s in the active group", id)
	}

	target.Name = name
	target.Latitude = lat
	target.Longitude = lng
	if len(args) > 4 {
		target.Description = args[4]
	}

	updated, err := a.controller.Update(ctx, target)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %s (%s)\n", updated.Name, updated.SyncStatus)
	return nil
}

// importCSV reads rows of name,description,latitude,longitude. Online the
// whole batch goes through the server's bulk endpoint; offline each row
// becomes a locally pending point that the next sync pushes.
func (a *app) importCSV(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	group := a.controller.ActiveGroup()
	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[h] = i
	}
	for _, required := range []string{"name", "latitude", "longitude"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("CSV is missing the %q column", required)
		}
	}

	var points []models.Point
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV row: %w", err)
		}
		lat, lng, err := parseCoords(row[col["latitude"]], row[col["longitude"]])
		if err != nil {
			return err
		}
		description := ""
		if i, ok := col["description"]; ok {
			description = row[i]
		}
		points = append(points, *models.NewPoint(group.ID, row[col["name"]], description, lat, lng))
	}
	if len(points) == 0 {
		fmt.Println("Nothing to import.")
		return nil
	}

	if !a.monitor.Offline() {
		result, err := a.gateway.BulkImport(ctx, points)
		if err == nil {
			fmt.Printf("Imported %d of %d points (%d failed)\n",
				result.Imported, result.Total, result.Failed)
			return a.controller.Refresh(ctx)
		}
		slog.Warn("bulk import failed, falling back to local adds", "error", err)
	}

	imported := 0
	for _, p := range points {
		if _, err := a.controller.Add(ctx, p.Name, p.Description, p.Latitude, p.Longitude); err != nil {
			slog.Warn("skipping row", "name", p.Name, "error", err)
			continue
		}
		imported++
	}
	fmt.Printf("Imported %d of %d points locally (pending sync)\n", imported, len(points))
	return nil
}

func parseCoords(latStr, lngStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", latStr)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", lngStr)
	}
	return lat, lng, nil
}
