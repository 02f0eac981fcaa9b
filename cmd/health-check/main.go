// Command health-check pings journal gateways and reports journals that have
// stopped contacting the staging server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"pln-staging-api/config"
	"pln-staging-api/services"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.ReloadMailerConfig()
	logFile, _ := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}
	config.InitDB()

	var (
		staleDays int
		ping      bool
		notify    bool
		timeout   time.Duration
	)

	flag.IntVar(&staleDays, "stale-days", defaultStaleDays(), "days without contact before a journal is unhealthy")
	flag.BoolVar(&ping, "ping", true, "ping every journal gateway before sweeping")
	flag.BoolVar(&notify, "notify", true, "email OPERATOR_EMAILS about newly stale journals")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "gateway request timeout")
	flag.Parse()

	if staleDays <= 0 {
		log.Fatal("stale-days must be greater than 0")
	}

	var recipients []string
	if notify {
		recipients = config.OperatorEmails()
	}
	health := services.NewJournalHealthService(config.DB, &http.Client{Timeout: timeout}, nil, recipients)

	ctx := context.Background()
	failed := 0
	if ping {
		ok, pingFailed, err := health.PingAll(ctx)
		if err != nil {
			log.Fatalf("gateway ping failed: %v", err)
		}
		failed = pingFailed
		fmt.Printf("Gateways pinged: %d ok, %d failed\n", ok, pingFailed)
	}

	summary, err := health.Sweep(ctx, time.Duration(staleDays)*24*time.Hour)
	if err != nil {
		log.Fatalf("health sweep failed: %v", err)
	}
	fmt.Printf("Stale journals: %d, operators notified about: %d\n", summary.Checked, summary.Notified)
	for _, uuid := range summary.Unhealthy {
		fmt.Printf("  unhealthy: %s\n", uuid)
	}

	if failed > 0 || summary.Checked > 0 {
		if logFile != nil {
			logFile.Close()
		}
		os.Exit(2)
	}
}

func defaultStaleDays() int {
	days, err := strconv.Atoi(os.Getenv("HEALTH_STALE_DAYS"))
	if err != nil || days <= 0 {
		return 7
	}
	return days
}
