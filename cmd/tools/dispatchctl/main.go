// cmd/tools/dispatchctl/main.go
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"batch-mailer/internal/common/config"
	"batch-mailer/internal/common/database"
	"batch-mailer/internal/dispatch"
	cd "batch-mailer/internal/workers/communication/campaign-dispatch"
)

func main() {
	cancelCmd := flag.NewFlagSet("cancel", flag.ExitOnError)
	progressCmd := flag.NewFlagSet("progress", flag.ExitOnError)
	renderCmd := flag.NewFlagSet("render", flag.ExitOnError)

	// cancel / progress flags
	runCancel := cancelCmd.String("run", "", "Run ID to cancel")
	ttl := cancelCmd.Duration("ttl", 24*time.Hour, "How long the cancel key is kept")
	cancelConfig := cancelCmd.String("config", "", "Config file for the Redis address (default: configs/)")
	runProgress := progressCmd.String("run", "", "Run ID to inspect")
	progressConfig := progressCmd.String("config", "", "Config file for the Redis address (default: configs/)")

	// render flags
	rowsPath := renderCmd.String("rows", "", "CSV file with a header row")
	templatePath := renderCmd.String("template", "", "Template file (default: built-in template)")
	emailColumn := renderCmd.String("email", "", "Email column (detected when empty)")
	companyColumn := renderCmd.String("company", "", "Company column (detected when empty)")
	resumeLink := renderCmd.String("resume", "", "Resume link")
	limit := renderCmd.Int("limit", 3, "Number of messages to print")
	details := pairs{}
	bindings := pairs{}
	renderCmd.Var(details, "detail", "Sender detail as 'Placeholder=Value' (repeatable)")
	renderCmd.Var(bindings, "bind", "Column binding as 'Column=Placeholder' (repeatable)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "cancel":
		cancelCmd.Parse(os.Args[2:])
		if *runCancel == "" {
			fmt.Println("Error: run is required for cancel.")
			cancelCmd.Usage()
			os.Exit(1)
		}
		redis, err := connectRedis(*cancelConfig)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer redis.Close()

		if err := cd.RequestCancel(ctx, redis.Client, *runCancel, *ttl); err != nil {
			fmt.Printf("Error cancelling run: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cancel requested for run %s; it stops before its next message.\n", *runCancel)

	case "progress":
		progressCmd.Parse(os.Args[2:])
		if *runProgress == "" {
			fmt.Println("Error: run is required for progress.")
			progressCmd.Usage()
			os.Exit(1)
		}
		redis, err := connectRedis(*progressConfig)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer redis.Close()

		percent, found, err := cd.ReadProgress(ctx, redis.Client, *runProgress)
		if err != nil {
			fmt.Printf("Error reading progress: %v\n", err)
			os.Exit(1)
		}
		if !found {
			fmt.Printf("No progress recorded for run %s.\n", *runProgress)
			os.Exit(2)
		}
		fmt.Printf("%s: %d%%\n", *runProgress, percent)

	case "render":
		renderCmd.Parse(os.Args[2:])
		if *rowsPath == "" {
			fmt.Println("Error: rows is required for render.")
			renderCmd.Usage()
			os.Exit(1)
		}
		opts := renderOptions{
			EmailColumn:   *emailColumn,
			CompanyColumn: *companyColumn,
			UserDetails:   details,
			Bindings:      bindings,
			ResumeLink:    *resumeLink,
			Limit:         *limit,
		}
		if err := runRender(os.Stdout, *rowsPath, *templatePath, opts); err != nil {
			fmt.Printf("Error rendering: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func connectRedis(configPath string) (*database.RedisClient, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return database.NewRedis(cfg.Database.Redis), nil
}

type renderOptions struct {
	EmailColumn   string
	CompanyColumn string
	UserDetails   map[string]string
	Bindings      map[string]string
	ResumeLink    string
	Limit         int
}

// runRender prints the first messages a run over rowsPath would send.
func runRender(w io.Writer, rowsPath, templatePath string, opts renderOptions) error {
	f, err := os.Open(rowsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	header, rows, err := readRows(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", rowsPath, err)
	}

	tmpl := dispatch.DefaultTemplate
	if templatePath != "" {
		b, err := os.ReadFile(templatePath)
		if err != nil {
			return err
		}
		tmpl = string(b)
	}
	if !dispatch.HasSubjectLine(tmpl) {
		return fmt.Errorf("template must start with %q", dispatch.SubjectMarker)
	}

	guess := dispatch.DetectColumns(header, rows)
	if opts.EmailColumn == "" {
		opts.EmailColumn = guess.EmailColumn
	}
	if opts.CompanyColumn == "" {
		opts.CompanyColumn = guess.CompanyColumn
	}
	if opts.EmailColumn == "" {
		return fmt.Errorf("no email column found in %v", header)
	}
	fmt.Fprintf(w, "email column: %s, company column: %s\n", opts.EmailColumn, opts.CompanyColumn)

	resumeLink, ok := dispatch.CleanResumeLink(opts.ResumeLink)
	if !ok {
		fmt.Fprintf(w, "resume link %q is not an http(s) URL, omitting it\n", opts.ResumeLink)
	}

	recipients := dispatch.FilterValid(rows, opts.EmailColumn)
	fmt.Fprintf(w, "%d of %d rows have a valid address\n", len(recipients), len(rows))

	renderer := dispatch.NewRenderer(dispatch.RenderConfig{
		Template:      tmpl,
		CompanyColumn: opts.CompanyColumn,
		Bindings:      opts.Bindings,
		UserDetails:   opts.UserDetails,
		ResumeLink:    resumeLink,
	})
	for i, rcpt := range recipients {
		if i >= opts.Limit {
			break
		}
		msg := renderer.Render(rcpt)
		fmt.Fprintf(w, "\n--- row %d ---\nTo: %s\nSubject: %s\n%s\n", rcpt.Position+1, msg.To, msg.Subject, msg.Body)
	}
	return nil
}

// readRows reads a CSV file whose first record names the columns.
func readRows(r io.Reader) ([]string, []dispatch.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("no header row")
	}

	header := records[0]
	rows := make([]dispatch.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(dispatch.Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// pairs collects repeated Key=Value flags.
type pairs map[string]string

func (p pairs) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (p pairs) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected Key=Value, got %q", s)
	}
	p[strings.TrimSpace(k)] = v
	return nil
}

func help() {
	fmt.Println("Usage: dispatchctl <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  cancel    Stop a running campaign at its next message")
	fmt.Println("  progress  Print the last published progress of a run")
	fmt.Println("  render    Preview messages for a CSV of recipients")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'dispatchctl <command> -h' for more information on a command.")
}
