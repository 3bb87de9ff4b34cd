// Command cobrabot-dialer runs one outbound collections campaign: it loads
// the enriched CTI file, connects to the PBX manager interface and paces call
// originations until the queue drains.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/juanpgarcia/cobrabot/internal/ami"
	"github.com/juanpgarcia/cobrabot/internal/config"
	"github.com/juanpgarcia/cobrabot/internal/dialer"
	"github.com/juanpgarcia/cobrabot/internal/ledger"
	"github.com/juanpgarcia/cobrabot/internal/notify"
	"github.com/juanpgarcia/cobrabot/internal/report"
)

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("cobrabot-dialer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ctiPath := fs.String("cti", "", "path to the enriched CTI CSV (required)")
	configPath := fs.String("config", os.Getenv("COBRABOT_CONFIG"), "path to YAML config")
	maxCalls := fs.Int("max-calls", 0, "cap the number of clients dialed (0 = all)")
	concurrent := fs.Int("concurrent", 0, "override max concurrent calls")
	dryRun := fs.Bool("dry-run", false, "load and report the queue without originating")
	reportPath := fs.String("report", "", "write an HTML campaign report to this path after the run")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if *ctiPath == "" {
		fmt.Fprintln(stderr, "cobrabot-dialer requires -cti <path>")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *concurrent > 0 {
		cfg.Dialer.MaxConcurrent = *concurrent
	}

	ctx := log.Context(context.Background())
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		return dryRunReport(*ctiPath, *maxCalls, stdout, stderr)
	}

	store, err := ledger.OpenCSV(cfg.Paths.ResultsCSV)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer store.Close()

	ctrl := &ami.Client{
		Host:     cfg.Asterisk.Host,
		Port:     cfg.Asterisk.AMIPort,
		Username: cfg.Asterisk.Username,
		Secret:   cfg.Asterisk.Secret,
	}

	d := dialer.New(cfg, ctrl, store)
	n, err := d.Load(*ctiPath, *maxCalls)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if n == 0 {
		fmt.Fprintln(stdout, "no clients to call")
		return 0
	}
	log.Printf(ctx, "campaign loaded: %d clients in queue", n)

	runErr := d.Run(ctx)
	printSummary(stdout, d.Summary())

	if *reportPath != "" {
		if err := writeReport(cfg.Paths.ResultsCSV, *reportPath); err != nil {
			fmt.Fprintln(stderr, err.Error())
		} else {
			fmt.Fprintf(stdout, "report written to %s\n", *reportPath)
		}
	}
	notifySummary(ctx, cfg, d.Summary())

	if runErr != nil && ctx.Err() == nil {
		fmt.Fprintln(stderr, runErr.Error())
		return 1
	}
	return 0
}

func writeReport(csvPath, outPath string) error {
	recs, err := ledger.ReadAll(csvPath)
	if err != nil {
		return err
	}
	_, html, err := report.Build(recs, time.Now())
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, html, 0o644)
}

// notifySummary posts the run totals to Slack when a token and channel are
// configured; a failed post is logged, never fatal.
func notifySummary(ctx context.Context, cfg config.Config, s dialer.Summary) {
	if cfg.Notify.SlackToken == "" || cfg.Notify.SlackChannel == "" {
		return
	}
	client := &notify.Client{Token: cfg.Notify.SlackToken}
	_, err := client.PostCampaignSummary(cfg.Notify.SlackChannel, notify.CampaignMessageInput{
		Total:           s.Total,
		Exitosas:        s.Exitosas,
		SinAcuerdo:      s.Fallidas,
		SinContestar:    s.SinContestar,
		TasaExito:       s.SuccessRate(),
		MontoRecuperado: s.Monto,
	})
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "slack notify failed"})
	}
}

func dryRunReport(ctiPath string, maxCalls int, stdout, stderr io.Writer) int {
	queue, err := dialer.LoadCTI(ctiPath, maxCalls)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	fmt.Fprintf(stdout, "dry-run: %d clients in queue\n", len(queue))
	for _, c := range queue {
		fmt.Fprintf(stdout, "  %s %s prob=%.3f segmento=%s mora=%d\n",
			c.Cedula, c.Celular, c.Probabilidad, c.Segmento, c.DiasMora)
	}
	return 0
}

func printSummary(w io.Writer, s dialer.Summary) {
	fmt.Fprintf(w, "total=%d exitosas=%d fallidas=%d sin_contestar=%d tasa_exito=%.1f%%\n",
		s.Total, s.Exitosas, s.Fallidas, s.SinContestar, s.SuccessRate()*100)
}
