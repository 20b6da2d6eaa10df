package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-overlay/internal/db"
	"github.com/joeblew999/plat-overlay/internal/logger"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/server"
	"github.com/joeblew999/plat-overlay/internal/tiler"
)

// Options defines all CLI flags and env vars for the overlay server.
// Flags: --host, --port, --data-dir, --web-dir, --scores, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_SCORES, ...
type Options struct {
	Host         string `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir      string `doc:"Directory for overlay data files" default:".data"`
	WebDir       string `doc:"Optional web/ directory with fragment template overrides"`
	Catalog      string `doc:"Layer catalog YAML (embedded default when empty)"`
	Geometry     string `doc:"Region GeoJSON (embedded Munich districts when empty)"`
	RegionKey    string `doc:"Feature property holding the region key" default:"plz"`
	Scores       string `doc:"Score backend" enum:"mock,duckdb" default:"mock"`
	Redis        string `doc:"Redis address for the score cache (disabled when empty)"`
	CacheTTL     string `doc:"Score cache TTL" default:"1m"`
	FetchTimeout string `doc:"Score fetch timeout" default:"10s"`
	Range        string `doc:"Initial timeline range" default:"live"`
	Interval     string `doc:"Initial aggregation interval (first allowed for the range when empty)"`
}

func (o *Options) timeouts() (cacheTTL, fetchTimeout time.Duration, err error) {
	if cacheTTL, err = time.ParseDuration(o.CacheTTL); err != nil {
		return 0, 0, fmt.Errorf("cache-ttl: %w", err)
	}
	if fetchTimeout, err = time.ParseDuration(o.FetchTimeout); err != nil {
		return 0, 0, fmt.Errorf("fetch-timeout: %w", err)
	}
	return cacheTTL, fetchTimeout, nil
}

func newServer(opts *Options) (*server.Server, error) {
	cacheTTL, fetchTimeout, err := opts.timeouts()
	if err != nil {
		return nil, err
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	return server.New(server.Config{
		Host:          opts.Host,
		Port:          fmt.Sprintf("%d", opts.Port),
		DataDir:       opts.DataDir,
		WebDir:        opts.WebDir,
		CatalogPath:   opts.Catalog,
		GeometryPath:  opts.Geometry,
		RegionKey:     opts.RegionKey,
		Scores:        opts.Scores,
		RedisAddr:     opts.Redis,
		RedisPassword: redisPassword,
		CacheTTL:      cacheTTL,
		FetchTimeout:  fetchTimeout,
		Range:         opts.Range,
		Interval:      opts.Interval,
	})
}

func mustServer(opts *Options) *server.Server {
	srv, err := newServer(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()
	logger.Setup()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server

		hooks.OnStart(func() {
			srv = mustServer(opts)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-overlay API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Scores:  %s\n", opts.Scores)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Surface: ws://%s:%d/api/v1/surface/ws\n", displayHost, opts.Port)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "overlay"
	cli.Root().Short = "Choropleth overlay engine for region scores"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fail("marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// render subcommand: write the overlay for the initial selection to a file
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render the overlay once (svg, png or geojson)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("output")
			source, _ := cmd.Flags().GetString("source")
			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")

			srv := mustServer(opts)
			defer srv.Close()
			sess := srv.Session()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if source != "" {
				if err := sess.SelectDataSource(ctx, source); err != nil {
					fail("%v", err)
				}
			}
			snap, err := sess.WaitReady(ctx)
			if err != nil {
				fail("waiting for scores: %v", err)
			}
			if snap.Error != nil {
				fail("%v", snap.Error)
			}
			doc, err := sess.Overlay(ctx)
			if err != nil {
				fail("%v", err)
			}

			svgOpts := overlay.DefaultSVGOptions()
			svgOpts.Width, svgOpts.Height = width, height

			var data []byte
			switch format {
			case "svg":
				data = overlay.EncodeSVG(sess.Geometry(), doc, svgOpts)
			case "png":
				lv, err := sess.Legend(ctx)
				if err != nil {
					fail("%v", err)
				}
				data, err = overlay.EncodePNG(sess.Geometry(), doc, overlay.PNGOptions{
					SVG:         svgOpts,
					LegendTitle: lv.Title,
					Legend:      lv.Entries,
				})
				if err != nil {
					fail("rendering png: %v", err)
				}
			case "geojson":
				data, err = doc.MarshalGeoJSON()
				if err != nil {
					fail("encoding geojson: %v", err)
				}
			default:
				fail("unknown format %q", format)
			}

			if out == "" || out == "-" {
				os.Stdout.Write(data)
				return
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				fail("%v", err)
			}
			fmt.Fprintf(os.Stderr, "Rendered %s (%d regions, token %d) to %s\n",
				snap.ScoresFor, len(doc.Regions), snap.Token, out)
		}),
	}
	renderCmd.Flags().StringP("format", "f", "svg", "Output format: svg, png or geojson")
	renderCmd.Flags().StringP("output", "o", "", "Output file (stdout when empty)")
	renderCmd.Flags().String("source", "", "Data source to select before rendering")
	renderCmd.Flags().Int("width", 800, "Image width")
	renderCmd.Flags().Int("height", 600, "Image height")
	cli.Root().AddCommand(renderCmd)

	// export-tiles subcommand: write the overlay as a PMTiles archive
	exportCmd := &cobra.Command{
		Use:   "export-tiles <name>",
		Short: "Export the overlay to <data-dir>/tiles/<name>.pmtiles",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			layer, _ := cmd.Flags().GetString("layer")
			minZoom, _ := cmd.Flags().GetInt("min-zoom")
			maxZoom, _ := cmd.Flags().GetInt("max-zoom")

			srv := mustServer(opts)
			defer srv.Close()
			sess := srv.Session()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := sess.WaitReady(ctx); err != nil {
				fail("waiting for scores: %v", err)
			}
			doc, err := sess.Overlay(ctx)
			if err != nil {
				fail("%v", err)
			}
			cfg := tiler.TileConfig{Layer: layer, MinZoom: minZoom, MaxZoom: maxZoom}
			tf, err := srv.Services().Tiles.Export(ctx, args[0], doc.Collection, cfg.WithDefaults())
			if err != nil {
				fail("exporting tiles: %v", err)
			}
			fmt.Printf("Tiles written: %s (%s) served at %s\n", tf.Name, tf.Size, tf.URL)
		}),
	}
	exportCmd.Flags().String("layer", "overlay", "Layer name inside the tiles")
	exportCmd.Flags().Int("min-zoom", 0, "Minimum zoom level")
	exportCmd.Flags().Int("max-zoom", 12, "Maximum zoom level")
	cli.Root().AddCommand(exportCmd)

	// ingest subcommand: load score observations from CSV into DuckDB
	ingestCmd := &cobra.Command{
		Use:   "ingest <file.csv>",
		Short: "Ingest score observations (source_id,region_id,observed_at,value) into DuckDB",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			f, err := os.Open(args[0])
			if err != nil {
				fail("%v", err)
			}
			defer f.Close()

			obs, err := scores.ParseCSV(f)
			if err != nil {
				fail("parsing %s: %v", args[0], err)
			}

			conn, err := db.Get(db.Config{DataDir: opts.DataDir, DBName: "overlay"})
			if err != nil {
				fail("opening database: %v", err)
			}
			defer db.Close()

			if err := scores.NewDuckDBFetcher(conn).Ingest(context.Background(), obs); err != nil {
				fail("ingesting: %v", err)
			}
			fmt.Printf("Ingested %d observations from %s\n", len(obs), args[0])
		}),
	}
	cli.Root().AddCommand(ingestCmd)

	cli.Run()
}
